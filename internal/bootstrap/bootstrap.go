package bootstrap

import (
	"context"
	"fmt"

	"github.com/kirillkom/mailtriage/internal/config"
	"github.com/kirillkom/mailtriage/internal/core/ports"
	"github.com/kirillkom/mailtriage/internal/core/usecase"
	"github.com/kirillkom/mailtriage/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/mailtriage/internal/infrastructure/mailbox/gmail"
	natsnotify "github.com/kirillkom/mailtriage/internal/infrastructure/notify/nats"
	"github.com/kirillkom/mailtriage/internal/infrastructure/resilience"
	"github.com/kirillkom/mailtriage/internal/infrastructure/store/localfs"
	s3store "github.com/kirillkom/mailtriage/internal/infrastructure/store/s3"
)

// RetrieverApp wires the retrieval half of the pipeline.
type RetrieverApp struct {
	Config config.Config
	Cycle  ports.CycleRunner
}

// ClassifierApp wires the classification half.
type ClassifierApp struct {
	Config config.Config
	Cycle  ports.CycleRunner

	closeFn func()
}

func (a *ClassifierApp) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func NewRetrieverApp(ctx context.Context, cfg config.Config) (*RetrieverApp, error) {
	executor := newExecutor(cfg)

	store, err := newStore(ctx, cfg, executor)
	if err != nil {
		return nil, err
	}

	mailbox, err := gmail.NewClient(ctx, gmail.Options{
		CredentialsFile: cfg.GmailCredentialsFile,
		TokenFile:       cfg.GmailTokenFile,
		Query:           cfg.GmailQuery,
	})
	if err != nil {
		return nil, fmt.Errorf("create gmail client: %w", err)
	}

	return &RetrieverApp{
		Config: cfg,
		Cycle:  usecase.NewRetrieveUseCase(mailbox, store, cfg.RetrieveBatchSize),
	}, nil
}

func NewClassifierApp(ctx context.Context, cfg config.Config) (*ClassifierApp, error) {
	executor := newExecutor(cfg)

	store, err := newStore(ctx, cfg, executor)
	if err != nil {
		return nil, err
	}

	prompt, err := loadPrompt(cfg)
	if err != nil {
		return nil, err
	}
	backend := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, ollama.Options{
		RateLimitRPS: cfg.ModelRateLimitRPS,
		RateBurst:    cfg.ModelRateBurst,
		Executor:     executor,
		Prompt:       prompt,
	})

	var (
		notifier ports.ResultNotifier
		closeFn  func()
	)
	if cfg.NATSEnabled {
		n, err := natsnotify.New(cfg.NATSURL, cfg.NATSSubject, natsnotify.Options{
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("create nats notifier: %w", err)
		}
		notifier = n
		closeFn = n.Close
	}

	return &ClassifierApp{
		Config: cfg,
		Cycle: usecase.NewClassifyUseCase(
			store,
			backend,
			notifier,
			cfg.ClassifyBatchSize,
			cfg.ClassifyMaxAttempts,
			cfg.ClassifyWorkers,
		),
		closeFn: closeFn,
	}, nil
}

func newExecutor(cfg config.Config) *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.RetryMaxAttempts,
		RetryInitialBackoff: cfg.RetryInitialBackoff,
		RetryMaxBackoff:     cfg.RetryMaxBackoff,
		RetryJitter:         cfg.RetryJitter,
		BreakerEnabled:      cfg.BreakerEnabled,
	})
}

func newStore(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.RecordStore, error) {
	switch cfg.StoreBackend {
	case "s3":
		store, err := s3store.New(ctx, cfg.S3Bucket, cfg.S3Region, executor)
		if err != nil {
			return nil, fmt.Errorf("create s3 store: %w", err)
		}
		return store, nil
	case "localfs", "":
		store, err := localfs.New(cfg.StoragePath, executor)
		if err != nil {
			return nil, fmt.Errorf("create localfs store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func loadPrompt(cfg config.Config) (*ollama.PromptTemplate, error) {
	if cfg.PromptTemplateFile == "" {
		return nil, nil
	}
	prompt, err := ollama.LoadPromptTemplate(cfg.PromptTemplateFile)
	if err != nil {
		return nil, fmt.Errorf("load prompt template: %w", err)
	}
	return prompt, nil
}
