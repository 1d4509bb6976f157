package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"currents/backend/internal/telemetry"
	"currents/backend/pkg/logger"
)

// Client talks to the media collaborator. The core never touches blob bytes;
// it stores the {url, externalRef} descriptor verbatim and asks for release
// by externalRef when a post with an image is deleted.
//
// Release is best-effort by contract, so the call sits behind a circuit
// breaker: when the media service is down, deletes keep flowing without
// waiting out its timeouts.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	metrics    *telemetry.Metrics
	logger     *zap.Logger
}

type releaseRequest struct {
	ExternalRef string `json:"external_ref"`
}

// NewClient creates a media client for the given base URL
func NewClient(baseURL string, metrics *telemetry.Metrics) *Client {
	log := logger.Get()

	settings := gobreaker.Settings{
		Name:    "media-release",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Media breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		metrics:    metrics,
		logger:     log,
	}
}

// Release asks the media collaborator to drop the blob behind externalRef.
// Callers treat any error as non-fatal.
func (c *Client) Release(ctx context.Context, externalRef string) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.release(ctx, externalRef)
	})
	if err != nil {
		c.metrics.MediaReleases.WithLabelValues("failure").Inc()
		return err
	}
	c.metrics.MediaReleases.WithLabelValues("success").Inc()
	return nil
}

func (c *Client) release(ctx context.Context, externalRef string) error {
	body, err := json.Marshal(releaseRequest{ExternalRef: externalRef})
	if err != nil {
		return fmt.Errorf("failed to encode release request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/release", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build release request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("release request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("release request returned status %d", resp.StatusCode)
	}

	return nil
}
