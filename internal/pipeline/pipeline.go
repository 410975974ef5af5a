package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"smart-mail-responder-go/internal/llm"
	"smart-mail-responder-go/internal/mailbox"
	"smart-mail-responder-go/internal/metrics"
	"smart-mail-responder-go/internal/model"
	"smart-mail-responder-go/internal/parser"
	"smart-mail-responder-go/internal/template"
)

// Settings are the generation parameters used by the pipeline.
type Settings struct {
	Model               string
	Temperature         float64
	MaxTokens           int
	ClassifyTemperature float64
	ClassifyMaxTokens   int
	Timeout             time.Duration
	// Workers bounds how many messages are processed at once; 1 or less
	// processes strictly in sequence.
	Workers  int
	Location *time.Location
	// Note is copied onto every summary, e.g. to flag demo output.
	Note string
}

// Processor runs fetch → parse → classify → respond for a batch of mail.
type Processor struct {
	source    mailbox.Source
	generator llm.Generator
	builder   *template.Builder
	settings  Settings
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New creates a new processor
func New(source mailbox.Source, generator llm.Generator, builder *template.Builder, settings Settings, m *metrics.Metrics) *Processor {
	if settings.Location == nil {
		settings.Location = time.Local
	}
	p := &Processor{
		source:    source,
		generator: generator,
		builder:   builder,
		settings:  settings,
		metrics:   m,
	}
	p.now = func() time.Time { return time.Now().In(p.settings.Location) }
	return p
}

// RunBatch fetches up to limit messages and processes each exactly once.
// It always returns a summary: fetch failures yield an empty batch and
// per-message failures are contained at the message boundary.
func (p *Processor) RunBatch(ctx context.Context, limit int) *model.BatchRunSummary {
	start := time.Now()
	p.metrics.BatchRuns.Inc()
	defer func() { p.metrics.BatchDuration.Observe(time.Since(start).Seconds()) }()

	summary := model.NewBatchRunSummary()

	raws, err := p.source.FetchUnseen(ctx, limit)
	if err != nil {
		logrus.WithField("source", p.source.Name()).Errorf("Failed to fetch emails: %v", err)
		p.metrics.FetchFailures.Inc()
		raws = nil
	}

	p.metrics.MessagesFetched.Add(float64(len(raws)))
	logrus.Infof("Fetched %d unseen emails", len(raws))

	for _, result := range p.processAll(ctx, raws) {
		if result == nil {
			continue
		}
		summary.Add(*result)
		p.metrics.MessagesProcessed.Inc()
		p.metrics.CategoryCount.WithLabelValues(result.Category.String()).Inc()
	}

	summary.Timestamp = p.now()
	summary.Note = p.settings.Note
	logrus.Infof("Batch completed: %d processed in %v", summary.TotalProcessed, time.Since(start))
	return summary
}

// processAll returns one slot per raw message in fetch order; nil marks a
// message that was skipped.
func (p *Processor) processAll(ctx context.Context, raws []model.RawMessage) []*model.ProcessedEmailResult {
	results := make([]*model.ProcessedEmailResult, len(raws))

	workers := p.settings.Workers
	if workers <= 1 {
		for i, raw := range raws {
			results[i] = p.processRaw(ctx, raw)
		}
		return results
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.processRaw(ctx, raws[i])
			}
		}()
	}
	for i := range raws {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func (p *Processor) processRaw(ctx context.Context, raw model.RawMessage) *model.ProcessedEmailResult {
	msg, err := parser.Parse(raw)
	if err != nil {
		logrus.Warnf("Skipping unparseable email: %v", err)
		p.metrics.ParseFailures.Inc()
		return nil
	}

	result := p.Process(ctx, msg)
	return &result
}

// Process classifies msg and drafts a reply. Generation failures never
// fail the message: classification falls back to other and the reply to
// the static text for the category.
func (p *Processor) Process(ctx context.Context, msg *model.ParsedMessage) model.ProcessedEmailResult {
	category := p.Classify(ctx, msg)
	response := p.Respond(ctx, msg, category)

	logrus.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"category":   category,
	}).Info("Email processed")

	return model.ProcessedEmailResult{
		ID:          msg.ID,
		From:        msg.From,
		Subject:     msg.Subject,
		Category:    category,
		Response:    response,
		ProcessedAt: p.now(),
	}
}

// Classify asks the generator for a single label.
func (p *Processor) Classify(ctx context.Context, msg *model.ParsedMessage) model.Category {
	prompt := template.BuildClassificationPrompt(msg.Subject, msg.Body)

	label, err := p.generate(ctx, prompt, llm.Options{
		Purpose:     llm.PurposeClassify,
		Model:       p.settings.Model,
		Temperature: p.settings.ClassifyTemperature,
		MaxTokens:   p.settings.ClassifyMaxTokens,
		Timeout:     p.settings.Timeout,
		Subject:     msg.Subject,
	})
	if err != nil {
		logrus.WithField("message_id", msg.ID).Warnf("Classification failed, using %s: %v", model.CategoryOther, err)
		p.metrics.ClassificationErrors.Inc()
		return model.CategoryOther
	}

	return model.ParseCategory(label)
}

// Respond drafts the reply for msg, or returns the fallback text.
func (p *Processor) Respond(ctx context.Context, msg *model.ParsedMessage, category model.Category) string {
	prompt := p.builder.BuildPrompt(msg.Body, category)

	text, err := p.generate(ctx, prompt, llm.Options{
		Purpose:     llm.PurposeRespond,
		Model:       p.settings.Model,
		Temperature: p.settings.Temperature,
		MaxTokens:   p.settings.MaxTokens,
		Timeout:     p.settings.Timeout,
		Subject:     msg.Subject,
	})
	text = strings.TrimSpace(text)
	if err == nil && text == "" {
		err = llm.ErrEmptyCompletion
	}
	if err != nil {
		logrus.WithField("message_id", msg.ID).Warnf("Reply generation failed, using fallback: %v", err)
		p.metrics.GenerationFallbacks.Inc()
		return template.BuildFallback(category)
	}

	return text
}

func (p *Processor) generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	start := time.Now()
	defer func() {
		p.metrics.GenerationDuration.WithLabelValues(string(opts.Purpose)).Observe(time.Since(start).Seconds())
	}()
	return p.generator.Generate(ctx, prompt, opts)
}
