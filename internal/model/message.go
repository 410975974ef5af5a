package model

// RawMessage is an email exactly as received from the mailbox transport.
type RawMessage []byte

// ParsedMessage is the structured form of a RawMessage.
type ParsedMessage struct {
	ID          string `json:"id"`
	From        string `json:"from"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	Date        string `json:"date"`
	ContentType string `json:"content_type"`
}
