package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("marketplace is not configured")

// HeaderIdempotencyKey is sent with every publish. Retries of one call reuse
// the key, so the marketplace lists the bundle once.
const HeaderIdempotencyKey = "Idempotency-Key"

// Listing is the marketplace's answer to a published bundle.
type Listing struct {
	ListingID string `json:"listing_id"`
	Status    string `json:"status"`
	URL       string `json:"url"`
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client publishes bundles to the template marketplace.
type Client struct {
	http       *resty.Client
	configured bool
	logger     *zap.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &Client{http: client, configured: baseURL != "", logger: logger}
}

// Publish posts b to /v1/templates and returns the created listing.
func (c *Client) Publish(ctx context.Context, b Bundle) (*Listing, error) {
	if !c.configured {
		return nil, ErrNotConfigured
	}
	key := uuid.NewString()
	c.logger.Info("publishing template bundle",
		zap.String("subdomain", b.SourceSubdomain),
		zap.String("idempotency_key", key),
		zap.Int("products", len(b.Catalog)),
		zap.Int("territories", len(b.Territories)),
	)

	var listing Listing
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(HeaderIdempotencyKey, key).
		SetBody(b).
		SetResult(&listing).
		SetError(&apiErr).
		Post("/v1/templates")
	if err != nil {
		c.logger.Error("marketplace call failed", zap.Error(err))
		return nil, fmt.Errorf("failed to call marketplace: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error
		}
		if msg == "" {
			msg = resp.Status()
		}
		c.logger.Error("marketplace rejected bundle",
			zap.Int("status_code", resp.StatusCode()), zap.String("msg", msg))
		return nil, fmt.Errorf("marketplace error: %s (status: %d)", msg, resp.StatusCode())
	}
	if listing.ListingID == "" {
		return nil, fmt.Errorf("marketplace returned no listing id")
	}

	c.logger.Info("template bundle listed", zap.String("listing_id", listing.ListingID))
	return &listing, nil
}
