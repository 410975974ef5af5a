package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"smart-mail-responder-go/internal/config"
	"smart-mail-responder-go/internal/handler"
	"smart-mail-responder-go/internal/llm"
	"smart-mail-responder-go/internal/mailbox"
	"smart-mail-responder-go/internal/metrics"
	"smart-mail-responder-go/internal/pipeline"
	"smart-mail-responder-go/internal/router"
	"smart-mail-responder-go/internal/scheduler"
	"smart-mail-responder-go/internal/template"
)

// DemoNote marks summaries produced from the canned demo mailbox.
const DemoNote = "ESTOS SON RESULTADOS DE DEMOSTRACIÓN - NO SE PROCESARON EMAILS REALES"

// Run initializes and starts the application
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	closeLog, err := setupLogging(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	defer closeLog()

	logrus.Info("Starting Smart Mail Responder Service")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	ctx := context.Background()

	source, err := newSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := source.Close(); err != nil {
			logrus.Errorf("Failed to close mailbox source: %v", err)
		}
	}()

	generator, err := newGenerator(cfg)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"mailbox":   source.Name(),
		"generator": generator.Name(),
	}).Info("Providers configured")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	processor, err := newProcessor(cfg, source, generator, m)
	if err != nil {
		return err
	}

	sched := scheduler.NewScheduler(scheduler.Config{
		Interval: cfg.Processing.Interval,
		Limit:    cfg.EffectiveLimit(),
	}, processor)

	if cfg.Processing.RunOnce {
		return runOnce(ctx, sched, os.Stdout)
	}

	h := handler.NewHandlers(sched, reg, source.Name(), generator.Name())
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.SetupRouter(h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

// setupLogging applies the log settings to the global logrus logger. The
// returned func closes the log file, if any.
func setupLogging(cfg config.LogConfig) (func(), error) {
	if strings.EqualFold(cfg.Format, "text") {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)

	if cfg.File == "" {
		logrus.SetOutput(os.Stdout)
		return func() {}, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logrus.SetOutput(f)
	return func() {
		logrus.SetOutput(os.Stdout)
		f.Close()
	}, nil
}

func newSource(ctx context.Context, cfg *config.Config) (mailbox.Source, error) {
	filter := mailbox.FilterConfig{
		AllowedDomains: cfg.Security.AllowedDomains,
		Blacklist:      cfg.Security.Blacklist,
		MaxSize:        int(cfg.Processing.MaxEmailSize),
	}

	switch cfg.Mailbox.Provider {
	case config.ProviderDemo:
		src, err := mailbox.NewDemoSource()
		if err != nil {
			return nil, fmt.Errorf("failed to create demo source: %w", err)
		}
		logrus.Info("Using demo mailbox")
		return src, nil
	case config.ProviderGmail:
		src, err := mailbox.NewGmailSource(ctx, mailbox.GmailConfig{
			ClientID:     cfg.Gmail.ClientID,
			ClientSecret: cfg.Gmail.ClientSecret,
			RefreshToken: cfg.Gmail.RefreshToken,
			UserEmail:    cfg.Gmail.UserEmail,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gmail API source: %w", err)
		}
		logrus.Info("Using Gmail API for email fetching")
		return mailbox.Filtered(src, filter), nil
	default:
		src := mailbox.NewIMAPSource(mailbox.IMAPConfig{
			Host:     cfg.IMAP.Host,
			Port:     cfg.IMAP.Port,
			TLS:      cfg.IMAP.TLS,
			Username: cfg.IMAP.Account,
			Password: cfg.IMAP.Password,
			Folders:  cfg.IMAP.Folders,
			Timeout:  cfg.IMAP.Timeout,
		})
		logrus.Info("Using IMAP for email fetching")
		return mailbox.Filtered(src, filter), nil
	}
}

func newGenerator(cfg *config.Config) (llm.Generator, error) {
	if cfg.Generator.Provider == config.ProviderDemo {
		return llm.NewDemoGenerator(), nil
	}

	client, err := llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	return client, nil
}

func newProcessor(cfg *config.Config, source mailbox.Source, generator llm.Generator, m *metrics.Metrics) (*pipeline.Processor, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone: %w", err)
	}

	var note string
	if cfg.Mailbox.Provider == config.ProviderDemo {
		note = DemoNote
	}

	builder := template.NewBuilder(cfg.Response.Language, cfg.Response.CompanyName)
	return pipeline.New(source, generator, builder, pipeline.Settings{
		Model:               cfg.OpenAI.Model,
		Temperature:         cfg.OpenAI.Temperature,
		MaxTokens:           cfg.OpenAI.MaxTokens,
		ClassifyTemperature: cfg.OpenAI.ClassifyTemperature,
		ClassifyMaxTokens:   cfg.OpenAI.ClassifyMaxTokens,
		Timeout:             cfg.OpenAI.Timeout,
		Workers:             cfg.Processing.Workers,
		Location:            loc,
		Note:                note,
	}, m), nil
}

// runOnce processes a single batch and writes its summary as JSON to w.
func runOnce(ctx context.Context, sched *scheduler.Scheduler, w io.Writer) error {
	summary := sched.RunOnce(ctx)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
