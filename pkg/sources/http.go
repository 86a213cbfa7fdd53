// Package sources implements record sources for the sync engine.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum response body size (10MB)
	MaxResponseSize = 10 * 1024 * 1024
)

// Config holds HTTP source configuration
type Config struct {
	// BaseURL is the provider gateway root, e.g. "http://gateway:8080".
	BaseURL string

	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// DefaultConfig returns default HTTP source configuration
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		Timeout:         DefaultTimeout,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
}

// HTTPSource fetches category records from the provider gateway as JSON.
// One GET per (service, category); the gateway owns per-provider auth and
// pagination.
type HTTPSource struct {
	client  *http.Client
	baseURL string
	logger  ectologger.Logger
}

// NewHTTPSource creates a new HTTP record source
func NewHTTPSource(cfg Config, logger ectologger.Logger) *HTTPSource {
	transport := &http.Transport{
		MaxIdleConns:    cfg.MaxIdleConns,
		IdleConnTimeout: cfg.IdleConnTimeout,
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &HTTPSource{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL: cfg.BaseURL,
		logger:  logger,
	}
}

// Fetch retrieves one category's records for the integration.
func (s *HTTPSource) Fetch(ctx context.Context, integration *models.Integration, category models.CategoryConfig) ([]models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "HTTPSource.Fetch")
	defer span.End()

	url := fmt.Sprintf("%s/api/v1/%s/categories/%s/records", s.baseURL, integration.Service, category.Name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Tenant-ID", integration.TenantID.String())
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		req.Header.Set("traceparent", traceparent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Errorf("Record fetch failed: GET %s", url)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s/%s records", resp.StatusCode, integration.Service, category.Name)
	}

	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response body too large: %d bytes (max %d)", len(body), MaxResponseSize)
	}

	var records []models.SourceRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}

	return records, nil
}
