package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	// Also registers charset decoders (iso-8859-*, windows-125x, koi8-r, ...)
	// for message bodies.
	"github.com/emersion/go-message/charset"
	"github.com/google/uuid"

	"smart-mail-responder-go/internal/model"
)

// ErrNoHeaders is returned for input that carries no header block at all.
var ErrNoHeaders = errors.New("message has no headers")

var (
	addressPattern = regexp.MustCompile(`<(.+?)>`)
	errStopWalk    = errors.New("stop walk")

	// headerDecoder decodes each encoded word on its own. A word in an
	// unknown charset keeps its raw bytes, which ToValidUTF8 then degrades.
	headerDecoder = mime.WordDecoder{
		CharsetReader: func(label string, input io.Reader) (io.Reader, error) {
			if r, err := charset.Reader(label, input); err == nil {
				return r, nil
			}
			return input, nil
		},
	}
)

// Parse converts raw email bytes into a ParsedMessage. It is pure: the same
// input always produces the same output. Undecodable bytes degrade to
// replacement characters; only a message without headers is rejected.
func Parse(raw model.RawMessage) (*model.ParsedMessage, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !isRecoverable(err) {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	if entity == nil || !hasFields(entity.Header) {
		return nil, ErrNoHeaders
	}

	contentType := mediaType(entity.Header)

	body, err := extractBody(entity, contentType)
	if err != nil {
		return nil, err
	}

	return &model.ParsedMessage{
		ID:          messageID(entity.Header, raw),
		From:        senderAddress(decodeHeader(entity.Header, "From")),
		Subject:     decodeHeader(entity.Header, "Subject"),
		Body:        strings.TrimSpace(body),
		Date:        entity.Header.Get("Date"),
		ContentType: contentType,
	}, nil
}

// extractBody walks the entity in document order. The first text/plain
// leaf wins; otherwise the first text/html leaf is converted to text.
func extractBody(entity *message.Entity, contentType string) (string, error) {
	if entity.MultipartReader() == nil {
		text := readText(entity.Body)
		if contentType == "text/html" {
			return HTMLToText(text), nil
		}
		return text, nil
	}

	var (
		plain    string
		html     string
		hasPlain bool
		hasHTML  bool
	)

	err := entity.Walk(func(_ []int, part *message.Entity, err error) error {
		if err != nil && !isRecoverable(err) {
			return err
		}
		if part == nil {
			return nil
		}
		if part.MultipartReader() != nil {
			return nil
		}

		switch mediaType(part.Header) {
		case "text/plain":
			plain = readText(part.Body)
			hasPlain = true
			return errStopWalk
		case "text/html":
			if !hasHTML {
				html = readText(part.Body)
				hasHTML = true
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return "", fmt.Errorf("failed to walk message parts: %w", err)
	}

	switch {
	case hasPlain:
		return plain, nil
	case hasHTML:
		return HTMLToText(html), nil
	}
	return "", nil
}

// decodeHeader decodes RFC 2047 encoded words. Words in an unknown charset
// are read as UTF-8; only a malformed header is returned undecoded.
func decodeHeader(h message.Header, key string) string {
	raw := h.Get(key)
	text, err := headerDecoder.DecodeHeader(raw)
	if err != nil {
		text = raw
	}
	return strings.ToValidUTF8(text, "�")
}

// senderAddress extracts addr from "Name <addr>", or returns the trimmed value.
func senderAddress(from string) string {
	if m := addressPattern.FindStringSubmatch(from); m != nil {
		return m[1]
	}
	return strings.TrimSpace(from)
}

// messageID returns the Message-ID header or, when absent, a name-based
// UUID derived from the raw bytes so repeated parses agree.
func messageID(h message.Header, raw []byte) string {
	if id := strings.TrimSpace(h.Get("Message-Id")); id != "" {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, raw).String()
}

func mediaType(h message.Header) string {
	t, _, err := h.ContentType()
	if err != nil || t == "" {
		return "text/plain"
	}
	return strings.ToLower(t)
}

func hasFields(h message.Header) bool {
	return h.Fields().Next()
}

func isRecoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

func readText(r io.Reader) string {
	data, err := io.ReadAll(r)
	if err != nil && len(data) == 0 {
		return ""
	}
	return strings.ToValidUTF8(string(data), "�")
}
