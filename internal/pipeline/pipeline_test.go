package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-responder-go/internal/llm"
	"smart-mail-responder-go/internal/mailbox"
	"smart-mail-responder-go/internal/metrics"
	"smart-mail-responder-go/internal/model"
	"smart-mail-responder-go/internal/template"
)

type fakeSource struct {
	messages []model.RawMessage
	err      error
	limit    int
}

func (s *fakeSource) FetchUnseen(_ context.Context, limit int) ([]model.RawMessage, error) {
	s.limit = limit
	return s.messages, s.err
}
func (s *fakeSource) Name() string { return "fake" }
func (s *fakeSource) Close() error { return nil }

// fakeGenerator dispatches on purpose and records every call.
type fakeGenerator struct {
	mu       sync.Mutex
	classify func(prompt string) (string, error)
	respond  func(prompt string) (string, error)
	calls    []llm.Options
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(_ context.Context, prompt string, opts llm.Options) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, opts)
	g.mu.Unlock()

	if opts.Purpose == llm.PurposeClassify {
		return g.classify(prompt)
	}
	return g.respond(prompt)
}

// keywordLabel echoes the demo keyword rules from a classification prompt.
func keywordLabel(prompt string) (string, error) {
	subject, body, _ := strings.Cut(strings.SplitN(prompt, "Asunto: ", 2)[1], "\nContenido: ")
	return llm.KeywordCategory(subject, body).String(), nil
}

func rawEmail(id, subject, body string) model.RawMessage {
	return model.RawMessage(fmt.Sprintf(
		"From: Sender <sender@example.com>\r\nSubject: %s\r\nMessage-ID: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		subject, id, body,
	))
}

func scenarioMessages() []model.RawMessage {
	return []model.RawMessage{
		rawEmail("<a@x>", "Pedido", "Tengo un problema: el producto llegó dañado."),
		rawEmail("<b@x>", "Consulta sobre precios", "¿Me pueden enviar información?"),
		rawEmail("<c@x>", "Propuesta", "Buscamos colaboración; ¿podemos agendar una reunión?"),
	}
}

func testSettings() Settings {
	return Settings{
		Model:               "gpt-test",
		Temperature:         0.7,
		MaxTokens:           500,
		ClassifyTemperature: 0.3,
		ClassifyMaxTokens:   10,
		Timeout:             time.Second,
		Workers:             1,
		Location:            time.UTC,
	}
}

func newProcessor(src mailbox.Source, gen llm.Generator, settings Settings) (*Processor, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return New(src, gen, template.NewBuilder("español", "ACME"), settings, m), m
}

func TestRunBatchKeywordScenario(t *testing.T) {
	gen := &fakeGenerator{
		classify: keywordLabel,
		respond:  func(string) (string, error) { return "  Gracias por escribirnos.  ", nil },
	}
	src := &fakeSource{messages: scenarioMessages()}
	p, m := newProcessor(src, gen, testSettings())

	summary := p.RunBatch(context.Background(), 3)

	assert.Equal(t, 3, src.limit)
	assert.Equal(t, 3, summary.TotalProcessed)
	assert.Equal(t, 1, summary.Categories[model.CategorySupport])
	assert.Equal(t, 1, summary.Categories[model.CategoryInquiry])
	assert.Equal(t, 1, summary.Categories[model.CategorySales])
	assert.Equal(t, 0, summary.Categories[model.CategoryOther])
	assert.Equal(t, 0, summary.Categories[model.CategorySpam])

	require.Len(t, summary.Emails, 3)
	assert.Equal(t, "<a@x>", summary.Emails[0].ID)
	assert.Equal(t, "<b@x>", summary.Emails[1].ID)
	assert.Equal(t, "<c@x>", summary.Emails[2].ID)
	for _, e := range summary.Emails {
		assert.Equal(t, "sender@example.com", e.From)
		assert.Equal(t, "Gracias por escribirnos.", e.Response)
		assert.False(t, e.ProcessedAt.IsZero())
	}
	assert.False(t, summary.Timestamp.IsZero())

	assert.Equal(t, 3.0, testutil.ToFloat64(m.MessagesProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CategoryCount.WithLabelValues("support")))
}

func TestRunBatchUsesDistinctGenerationSettings(t *testing.T) {
	gen := &fakeGenerator{
		classify: func(string) (string, error) { return "support", nil },
		respond:  func(string) (string, error) { return "ok", nil },
	}
	p, _ := newProcessor(&fakeSource{messages: scenarioMessages()[:1]}, gen, testSettings())

	p.RunBatch(context.Background(), 1)

	require.Len(t, gen.calls, 2)
	assert.Equal(t, llm.Options{Purpose: llm.PurposeClassify, Model: "gpt-test", Temperature: 0.3, MaxTokens: 10, Timeout: time.Second, Subject: "Pedido"}, gen.calls[0])
	assert.Equal(t, llm.Options{Purpose: llm.PurposeRespond, Model: "gpt-test", Temperature: 0.7, MaxTokens: 500, Timeout: time.Second, Subject: "Pedido"}, gen.calls[1])
}

func TestRunBatchResponseFailureUsesFallback(t *testing.T) {
	gen := &fakeGenerator{
		classify: keywordLabel,
		respond:  func(string) (string, error) { return "", errors.New("timeout") },
	}
	p, m := newProcessor(&fakeSource{messages: scenarioMessages()}, gen, testSettings())

	summary := p.RunBatch(context.Background(), 10)

	assert.Equal(t, 3, summary.TotalProcessed)
	for _, e := range summary.Emails {
		assert.Equal(t, template.BuildFallback(e.Category), e.Response)
	}
	assert.Equal(t, template.BuildFallback(model.CategorySupport), summary.Emails[0].Response)
	assert.Equal(t, template.BuildFallback(model.CategoryInquiry), summary.Emails[1].Response)
	assert.Equal(t, template.BuildFallback(model.CategorySales), summary.Emails[2].Response)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.GenerationFallbacks))
}

func TestRunBatchEmptyResponseUsesFallback(t *testing.T) {
	gen := &fakeGenerator{
		classify: func(string) (string, error) { return "sales", nil },
		respond:  func(string) (string, error) { return " \n ", nil },
	}
	p, _ := newProcessor(&fakeSource{messages: scenarioMessages()[:1]}, gen, testSettings())

	summary := p.RunBatch(context.Background(), 1)

	require.Len(t, summary.Emails, 1)
	assert.Equal(t, template.BuildFallback(model.CategorySales), summary.Emails[0].Response)
}

func TestRunBatchClassificationFailureResolvesToOther(t *testing.T) {
	gen := &fakeGenerator{
		classify: func(string) (string, error) { return "", errors.New("quota exceeded") },
		respond:  func(string) (string, error) { return "reply", nil },
	}
	p, m := newProcessor(&fakeSource{messages: scenarioMessages()}, gen, testSettings())

	summary := p.RunBatch(context.Background(), 10)

	assert.Equal(t, 3, summary.TotalProcessed)
	assert.Equal(t, 3, summary.Categories[model.CategoryOther])
	for _, e := range summary.Emails {
		assert.Equal(t, model.CategoryOther, e.Category)
		assert.Equal(t, "reply", e.Response)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ClassificationErrors))
}

func TestRunBatchOutOfSetLabelResolvesToOther(t *testing.T) {
	gen := &fakeGenerator{
		classify: func(string) (string, error) { return "urgent", nil },
		respond:  func(string) (string, error) { return "reply", nil },
	}
	p, _ := newProcessor(&fakeSource{messages: scenarioMessages()[:1]}, gen, testSettings())

	summary := p.RunBatch(context.Background(), 1)
	assert.Equal(t, model.CategoryOther, summary.Emails[0].Category)
	assert.Equal(t, 1, summary.Categories[model.CategoryOther])
}

func TestRunBatchSkipsUnparseableMessages(t *testing.T) {
	gen := &fakeGenerator{
		classify: keywordLabel,
		respond:  func(string) (string, error) { return "reply", nil },
	}
	msgs := scenarioMessages()
	msgs = append([]model.RawMessage{model.RawMessage("garbage without headers\r\n\r\n")}, msgs...)
	p, m := newProcessor(&fakeSource{messages: msgs}, gen, testSettings())

	summary := p.RunBatch(context.Background(), 10)

	assert.Equal(t, 3, summary.TotalProcessed)
	assert.Len(t, summary.Emails, 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ParseFailures))
}

func TestRunBatchFetchFailureReturnsEmptySummary(t *testing.T) {
	gen := &fakeGenerator{}
	p, m := newProcessor(&fakeSource{err: errors.New("connection refused")}, gen, testSettings())

	summary := p.RunBatch(context.Background(), 10)

	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.TotalProcessed)
	assert.Empty(t, summary.Emails)
	assert.Len(t, summary.Categories, len(model.Categories()))
	for _, c := range model.Categories() {
		assert.Equal(t, 0, summary.Categories[c])
	}
	assert.Empty(t, gen.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchFailures))
}

func TestRunBatchParallelPreservesFetchOrder(t *testing.T) {
	var msgs []model.RawMessage
	for i := 0; i < 20; i++ {
		msgs = append(msgs, rawEmail(fmt.Sprintf("<%02d@x>", i), "Consulta", "cuerpo"))
	}
	gen := &fakeGenerator{
		classify: func(prompt string) (string, error) {
			time.Sleep(time.Duration(len(prompt)%5) * time.Millisecond)
			return keywordLabel(prompt)
		},
		respond: func(string) (string, error) { return "reply", nil },
	}
	settings := testSettings()
	settings.Workers = 4
	p, _ := newProcessor(&fakeSource{messages: msgs}, gen, settings)

	summary := p.RunBatch(context.Background(), 20)

	require.Len(t, summary.Emails, 20)
	for i, e := range summary.Emails {
		assert.Equal(t, fmt.Sprintf("<%02d@x>", i), e.ID)
	}
	assert.Equal(t, 20, summary.Categories[model.CategoryInquiry])
}

func TestRunBatchWithDemoCollaborators(t *testing.T) {
	src, err := mailbox.NewDemoSource()
	require.NoError(t, err)
	p, _ := newProcessor(src, llm.NewDemoGenerator(), testSettings())

	summary := p.RunBatch(context.Background(), 3)

	assert.Equal(t, 3, summary.TotalProcessed)
	assert.Equal(t, 1, summary.Categories[model.CategorySupport])
	assert.Equal(t, 1, summary.Categories[model.CategoryInquiry])
	assert.Equal(t, 1, summary.Categories[model.CategorySales])
	assert.Equal(t, 0, summary.Categories[model.CategoryOther])
	assert.Equal(t, model.CategorySupport, summary.Emails[0].Category)
	assert.Contains(t, summary.Emails[0].Response, "El equipo de soporte")
	assert.Contains(t, summary.Emails[0].Response, "'"+summary.Emails[0].Subject+"'")
	assert.Empty(t, summary.Note)
}

func TestRunBatchCopiesNote(t *testing.T) {
	src, err := mailbox.NewDemoSource()
	require.NoError(t, err)
	settings := testSettings()
	settings.Note = "demo"
	p, _ := newProcessor(src, llm.NewDemoGenerator(), settings)

	assert.Equal(t, "demo", p.RunBatch(context.Background(), 1).Note)
}

func TestProcessTimestampsInLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)

	gen := &fakeGenerator{
		classify: func(string) (string, error) { return "inquiry", nil },
		respond:  func(string) (string, error) { return "reply", nil },
	}
	settings := testSettings()
	settings.Location = loc
	p, _ := newProcessor(&fakeSource{}, gen, settings)

	result := p.Process(context.Background(), &model.ParsedMessage{ID: "1", From: "a@b.c", Subject: "s", Body: "b"})

	assert.Equal(t, loc, result.ProcessedAt.Location())
	assert.Equal(t, model.CategoryInquiry, result.Category)
}
