// Package store is the outbound client for the remote document store
// (spec.md §4.4). Its request-building shape — NewRequestWithContext,
// explicit headers, deferred body close, status-code branch, JSON
// decode — is grounded on pkg/runbook/github.go's GitHubClient. Retry
// classification is grounded on pkg/mcp/recovery.go's ClassifyError.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/cache"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/pipelineerr"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/property"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/ssrf"
	"github.com/blackcore-intel/pipeline/pkg/version"
)

const schemaCacheTTL = 5 * time.Minute

// limiter is satisfied by both ratelimit.Limiter and
// ratelimit.DistributedLimiter.
type limiter interface {
	Wait(ctx context.Context) error
}

// Client is the document-store CRUD+query surface. It is safe for
// concurrent use: the only mutable state it owns is the rate limiter, the
// schema cache and the SSRF checker's hostname→IP TTL cache, all already
// thread-safe.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	limiter limiter
	schemas *cache.Cache
	ssrf    *ssrf.Checker
	log     *slog.Logger
}

// New builds a Client against baseURL (e.g. "https://api.store.example.com")
// authenticating with a bearer token.
func New(baseURL, token string, rl limiter, schemaCache *cache.Cache, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		token:   token,
		limiter: rl,
		schemas: schemaCache,
		ssrf:    ssrf.New(),
		log:     log,
	}
}

// wirePage is the over-the-wire page representation decoded from/encoded
// to the store's JSON API, before property.Value translation.
type wirePage struct {
	ID             string                     `json:"id"`
	DatabaseID     string                     `json:"database_id"`
	Properties     map[string]json.RawMessage `json:"properties"`
	LastEditedTime time.Time                  `json:"last_edited_time"`
}

type wireQueryResponse struct {
	Pages      []wirePage `json:"pages"`
	NextCursor *string    `json:"next_cursor"`
}

// GetPage fetches a single page by id.
func (c *Client) GetPage(ctx context.Context, pageID string) (*models.Page, error) {
	var wp wirePage
	if err := c.doJSON(ctx, http.MethodGet, "/pages/"+pageID, nil, &wp); err != nil {
		return nil, err
	}
	schema, err := c.schemaFor(ctx, wp.DatabaseID)
	if err != nil {
		return nil, err
	}
	return decodePage(wp, schema)
}

// QueryDatabase runs a filtered, paginated query. Callers iterate until
// nextCursor is nil.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, filter map[string]any, cursor *string) (pages []models.Page, nextCursor *string, err error) {
	body := map[string]any{}
	if filter != nil {
		body["filter"] = filter
	}
	if cursor != nil {
		body["cursor"] = *cursor
	}

	var resp wireQueryResponse
	if err := c.doJSON(ctx, http.MethodPost, "/databases/"+databaseID+"/query", body, &resp); err != nil {
		return nil, nil, err
	}

	schema, err := c.schemaFor(ctx, databaseID)
	if err != nil {
		return nil, nil, err
	}

	out := make([]models.Page, 0, len(resp.Pages))
	for _, wp := range resp.Pages {
		p, err := decodePage(wp, schema)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, *p)
	}
	return out, resp.NextCursor, nil
}

// FindByTitle is a convenience wrapper over QueryDatabase filtering by
// exact title match.
func (c *Client) FindByTitle(ctx context.Context, databaseID, title string) (*models.Page, error) {
	pages, _, err := c.QueryDatabase(ctx, databaseID, map[string]any{"title_equals": title}, nil)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, nil
	}
	return &pages[0], nil
}

// CreatePage creates a page in databaseID with the given plain property
// values, encoding them against the database's cached schema.
func (c *Client) CreatePage(ctx context.Context, databaseID string, plainProperties map[string]any) (*models.Page, error) {
	schema, err := c.schemaFor(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	encoded, err := encodeProperties(plainProperties, schema)
	if err != nil {
		return nil, err
	}
	if err := c.validateOutboundURLs(encoded); err != nil {
		return nil, err
	}

	var wp wirePage
	body := map[string]any{"database_id": databaseID, "properties": encoded}
	if err := c.doJSON(ctx, http.MethodPost, "/pages", body, &wp); err != nil {
		return nil, err
	}
	return decodePage(wp, schema)
}

// UpdatePage partially updates pageID: only keys present in
// plainProperties are touched.
func (c *Client) UpdatePage(ctx context.Context, pageID string, plainProperties map[string]any) (*models.Page, error) {
	current, err := c.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	schema, err := c.schemaFor(ctx, current.DatabaseID)
	if err != nil {
		return nil, err
	}
	encoded, err := encodeProperties(plainProperties, schema)
	if err != nil {
		return nil, err
	}
	if err := c.validateOutboundURLs(encoded); err != nil {
		return nil, err
	}

	var wp wirePage
	body := map[string]any{"properties": encoded}
	if err := c.doJSON(ctx, http.MethodPatch, "/pages/"+pageID, body, &wp); err != nil {
		return nil, err
	}
	return decodePage(wp, schema)
}

// schemaFor returns databaseID's schema, served from the 5-minute cache
// when present.
func (c *Client) schemaFor(ctx context.Context, databaseID string) (*models.DatabaseSchema, error) {
	if c.schemas != nil {
		if raw, hit := c.schemas.Get(databaseID); hit {
			var schema models.DatabaseSchema
			if err := json.Unmarshal(raw, &schema); err == nil {
				return &schema, nil
			}
			c.log.Warn("store: corrupt cached schema, refetching", "database_id", databaseID)
		}
	}

	var schema models.DatabaseSchema
	if err := c.doJSON(ctx, http.MethodGet, "/databases/"+databaseID, nil, &schema); err != nil {
		return nil, err
	}

	if c.schemas != nil {
		if raw, err := json.Marshal(schema); err == nil {
			_ = c.schemas.Set(databaseID, raw, schemaCacheTTL)
		}
	}
	return &schema, nil
}

// doJSON performs one rate-limited, retried, SSRF-checked request and
// decodes the JSON response body into out (nil to discard the body).
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	url := c.baseURL + path
	if err := c.ssrf.ValidateOutbound(ctx, url); err != nil {
		return pipelineerr.Validation("store: outbound URL rejected", err).WithContext(map[string]string{"url": path})
	}

	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return pipelineerr.Validation("store: encode request body", err)
		}
		bodyBytes = b
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return pipelineerr.Cancelled().WithContext(map[string]string{"stage": "rate_limit_wait"})
		}
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(bodyBytes))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("User-Agent", version.Full())
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if !isRetryableStatus(resp.StatusCode) && resp.StatusCode >= 400 {
			return backoff.Permanent(newHTTPError(resp.StatusCode, respBody))
		}
		if resp.StatusCode >= 400 {
			return newHTTPError(resp.StatusCode, respBody)
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	}

	policy := retryPolicy(ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return classifyFinalError(err)
	}
	return nil
}

func retryPolicy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.RandomizationFactor = 0.2
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, 2), ctx)
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// validateOutboundURLs walks encoded url/files property payloads and
// rejects any that resolve to a blocked IP range before the request is
// ever sent.
func (c *Client) validateOutboundURLs(encoded map[string]property.Value) error {
	for name, v := range encoded {
		switch v.Kind {
		case property.KindURL:
			if u, ok := v.Payload.(string); ok && u != "" {
				if err := c.ssrf.ValidateOutbound(context.Background(), u); err != nil {
					return pipelineerr.Validation(fmt.Sprintf("property %q: unsafe URL", name), err)
				}
			}
		case property.KindFiles:
			if refs, ok := v.Payload.([]property.FileRef); ok {
				for _, f := range refs {
					if err := c.ssrf.ValidateOutbound(context.Background(), f.URL); err != nil {
						return pipelineerr.Validation(fmt.Sprintf("property %q: unsafe file URL", name), err)
					}
				}
			}
		}
	}
	return nil
}
