// Package ollama implements the model backend capability against an Ollama
// server. The backend is opaque text-in/text-out: label parsing stays with
// the caller.
package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/mailtriage/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
	prompt     *PromptTemplate
}

type Options struct {
	// RateLimitRPS caps classify calls per second; zero disables the limiter.
	RateLimitRPS float64
	RateBurst    int
	Timeout      time.Duration
	Executor     *resilience.Executor
	Prompt       *PromptTemplate
}

func New(baseURL, genModel string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}
	prompt := opts.Prompt
	if prompt == nil {
		prompt = DefaultPromptTemplate()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		executor:   opts.Executor,
		prompt:     prompt,
	}
}

// Classify submits one message to the model and returns the raw response
// text. Transient HTTP failures are retried with backoff inside the call;
// exhausted or rate-limited failures surface as temporary errors so the
// cycle defers the record instead of spending its attempt budget.
func (c *Client) Classify(ctx context.Context, subject, body string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	prompt := c.prompt.Render(subject, body)
	var raw string
	call := func(ctx context.Context) error {
		text, err := c.generateText(ctx, prompt)
		if err != nil {
			return err
		}
		raw = text
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama.classify", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("classify", err)
	}
	return raw, nil
}

func (c *Client) generateText(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
