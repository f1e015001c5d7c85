// Package webhook pushes terminal jobs to HTTP callbacks.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"gitlab.com/zkboost.net/internal/core/ports/primary"
	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
)

const (
	DefaultAttemptTimeout = 10 * time.Second
	DefaultRate           = 20
	DefaultBurst          = 20
)

// DefaultBackoff is the wait before the 2nd and 3rd attempt.
var DefaultBackoff = []time.Duration{time.Second, 2 * time.Second}

type Config struct {
	// Backoff holds one wait per retry; attempts = len(Backoff)+1.
	Backoff        []time.Duration
	AttemptTimeout time.Duration

	// Rate caps outbound requests per second across all sinks.
	Rate  float64
	Burst int
}

// Client is shared by every callback sink
type Client struct {
	http    *http.Client
	signer  primary.JWTService
	limiter *rate.Limiter
	logger  primary.Logger
	cfg     Config
}

// NewClient builds a webhook client. signer may be nil for unsigned callbacks.
func NewClient(signer primary.JWTService, logger primary.Logger, cfg Config) *Client {
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	return &Client{
		http:    &http.Client{},
		signer:  signer,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		logger:  logger,
		cfg:     cfg,
	}
}

// Sink returns a sink delivering to url
func (c *Client) Sink(url string) secondary.ResultSink {
	return &Sink{client: c, url: url}
}

type Sink struct {
	client *Client
	url    string
}

// statusError is a non-2xx answer from the receiver.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("webhook answered %d", e.code)
}

// Deliver posts job, retrying transport failures and 5xx answers. A 4xx
// answer is final.
func (s *Sink) Deliver(ctx context.Context, job *domain.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	var lastErr error
	attempts := len(s.client.cfg.Backoff) + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, s.client.cfg.Backoff[attempt-2]); err != nil {
				return fmt.Errorf("webhook %s: %w (last error: %v)", s.url, err, lastErr)
			}
		}

		lastErr = s.post(ctx, job, body)
		if lastErr == nil {
			return nil
		}
		if se, ok := lastErr.(*statusError); ok && se.code >= 400 && se.code < 500 {
			return fmt.Errorf("webhook %s rejected job %s: %w", s.url, job.ID, lastErr)
		}
		s.client.logger.Warn("Webhook attempt failed",
			"jobId", job.ID,
			"url", s.url,
			"attempt", attempt,
			"error", lastErr)
	}
	return fmt.Errorf("webhook %s failed after %d attempts: %w", s.url, attempts, lastErr)
}

func (s *Sink) post(ctx context.Context, job *domain.Job, body []byte) error {
	if err := s.client.limiter.Wait(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.client.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", job.ID.String())

	if s.client.signer != nil {
		token, err := s.client.signer.GenerateTokenHMAC(ctx, "HS256", map[string]interface{}{
			"job_id": job.ID.String(),
			"iat":    time.Now().Unix(),
		})
		if err != nil {
			return fmt.Errorf("sign webhook: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
