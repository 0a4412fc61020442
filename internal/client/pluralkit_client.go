package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/z0w13/dmserv/internal/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Member is a PluralKit system member
type Member struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	DisplayName *string `json:"display_name"`
	Color       *string `json:"color"`
}

// EffectiveName returns the display name when set, else the member name
func (m Member) EffectiveName() string {
	if m.DisplayName != nil && *m.DisplayName != "" {
		return *m.DisplayName
	}
	return m.Name
}

// SystemInfo is the subset of a PluralKit system used during setup
type SystemInfo struct {
	ID   string  `json:"id"`
	Name *string `json:"name"`
}

// MembershipClient reads system membership from PluralKit.
// An empty token means an anonymous request.
type MembershipClient interface {
	GetFronters(ctx context.Context, systemID, token string) ([]Member, error)
	GetMembers(ctx context.Context, systemID, token string) ([]Member, error)
	GetSystem(ctx context.Context, systemID, token string) (*SystemInfo, error)
}

// PluralKitClientConfig configures the PluralKit HTTP client
type PluralKitClientConfig struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	BurstSize         int
}

// PluralKitClient implements MembershipClient over the PluralKit v2 REST API
type PluralKitClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewPluralKitClient creates a new PluralKit client
func NewPluralKitClient(cfg PluralKitClientConfig, logger *zap.Logger) *PluralKitClient {
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return &PluralKitClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		logger:     logger,
	}
}

type frontersResponse struct {
	Members []json.RawMessage `json:"members"`
}

// GetFronters returns the system's current fronters.
// Entries hidden by privacy settings come back as bare ids and are skipped.
func (c *PluralKitClient) GetFronters(ctx context.Context, systemID, token string) ([]Member, error) {
	const op = "get fronters"

	body, status, err := c.get(ctx, op, "/systems/"+url.PathEscape(systemID)+"/fronters", token)
	if err != nil {
		return nil, err
	}
	// No switch registered yet
	if status == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return []Member{}, nil
	}

	var resp frontersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.ParseFailed(op, err)
	}

	members := make([]Member, 0, len(resp.Members))
	for _, raw := range resp.Members {
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '"' {
			continue
		}
		var member Member
		if err := json.Unmarshal(raw, &member); err != nil {
			return nil, apperrors.ParseFailed(op, err)
		}
		members = append(members, member)
	}

	return members, nil
}

// GetMembers returns the whole system roster visible to token
func (c *PluralKitClient) GetMembers(ctx context.Context, systemID, token string) ([]Member, error) {
	const op = "get members"

	body, _, err := c.get(ctx, op, "/systems/"+url.PathEscape(systemID)+"/members", token)
	if err != nil {
		return nil, err
	}

	var members []Member
	if err := json.Unmarshal(body, &members); err != nil {
		return nil, apperrors.ParseFailed(op, err)
	}
	return members, nil
}

// GetSystem returns the system id and name
func (c *PluralKitClient) GetSystem(ctx context.Context, systemID, token string) (*SystemInfo, error) {
	const op = "get system"

	body, _, err := c.get(ctx, op, "/systems/"+url.PathEscape(systemID), token)
	if err != nil {
		return nil, err
	}

	var system SystemInfo
	if err := json.Unmarshal(body, &system); err != nil {
		return nil, apperrors.ParseFailed(op, err)
	}
	return &system, nil
}

func (c *PluralKitClient) get(ctx context.Context, op, path, token string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, apperrors.FetchFailed(op, 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, apperrors.FetchFailed(op, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, apperrors.FetchFailed(op, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, resp.StatusCode, apperrors.FetchFailed(op, resp.StatusCode, err)
	}

	c.logger.Debug("PluralKit request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, apperrors.FetchFailed(op, resp.StatusCode,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	return body, resp.StatusCode, nil
}

func truncate(body []byte, n int) string {
	if len(body) > n {
		return string(body[:n]) + "..."
	}
	return string(body)
}
