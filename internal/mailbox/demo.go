package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"

	"smart-mail-responder-go/internal/model"
)

type demoEmail struct {
	id      string
	name    string
	from    string
	subject string
	body    string
	date    time.Time
}

var demoEmails = []demoEmail{
	{
		id:      "<demo-1@smart-mail-responder.local>",
		name:    "Cliente",
		from:    "cliente@empresa.com",
		subject: "Problema con mi pedido reciente",
		body: "Hola, tengo un problema con el pedido #12345 que hice la semana pasada. " +
			"El producto llegó dañado. ¿Cómo puedo solicitar un reemplazo?",
		date: time.Date(2023, 5, 15, 10, 30, 0, 0, time.UTC),
	},
	{
		id:      "<demo-2@smart-mail-responder.local>",
		name:    "Prospecto",
		from:    "prospecto@otraempresa.com",
		subject: "Consulta sobre sus servicios",
		body: "Buen día, estoy interesado en sus servicios empresariales. " +
			"¿Podrían enviarme información sobre sus planes y precios?",
		date: time.Date(2023, 5, 15, 11, 45, 0, 0, time.UTC),
	},
	{
		id:      "<demo-3@smart-mail-responder.local>",
		name:    "Terceros",
		from:    "soporte@terceros.com",
		subject: "Colaboración entre empresas",
		body: "Nos gustaría explorar oportunidades de colaboración. " +
			"¿Estarían disponibles para una reunión la próxima semana?",
		date: time.Date(2023, 5, 16, 9, 15, 0, 0, time.UTC),
	},
}

// DemoSource serves a fixed set of sample messages.
type DemoSource struct {
	messages []model.RawMessage
}

// NewDemoSource renders the sample messages as RFC 5322 bytes
func NewDemoSource() (*DemoSource, error) {
	messages := make([]model.RawMessage, 0, len(demoEmails))
	for _, e := range demoEmails {
		raw, err := renderDemoEmail(e)
		if err != nil {
			return nil, fmt.Errorf("failed to render demo email %s: %w", e.id, err)
		}
		messages = append(messages, raw)
	}
	return &DemoSource{messages: messages}, nil
}

// Name returns the source name
func (s *DemoSource) Name() string {
	return "demo"
}

// FetchUnseen returns the first limit sample messages
func (s *DemoSource) FetchUnseen(_ context.Context, limit int) ([]model.RawMessage, error) {
	if limit > len(s.messages) {
		limit = len(s.messages)
	}
	out := make([]model.RawMessage, limit)
	copy(out, s.messages[:limit])
	return out, nil
}

// Close is a no-op
func (s *DemoSource) Close() error {
	return nil
}

func renderDemoEmail(e demoEmail) (model.RawMessage, error) {
	var h mail.Header
	h.SetAddressList("From", []*mail.Address{{Name: e.name, Address: e.from}})
	h.SetAddressList("To", []*mail.Address{{Address: "contacto@miempresa.com"}})
	h.SetSubject(e.subject)
	h.SetDate(e.date)
	h.Set("Message-Id", e.id)
	h.Set("Content-Type", "text/plain; charset=utf-8")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, e.body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
