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

	"github.com/smallbiznis/fintrack/internal/apperror"
	"github.com/smallbiznis/fintrack/internal/config"
	"github.com/smallbiznis/fintrack/internal/license/domain"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20
)

type httpClient struct {
	baseURL string
	http    *http.Client
}

func New(cfg config.Config, log *zap.Logger) domain.Client {
	timeout := cfg.License.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if cfg.License.Enabled && !isHTTPS(cfg.License.APIURL) {
		log.Named("license.client").Warn("license.client.insecure_api_url",
			zap.String("api_url", cfg.License.APIURL),
		)
	}
	return NewWithHTTPClient(cfg.License.APIURL, &http.Client{Timeout: timeout})
}

func isHTTPS(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, "https")
}

func NewWithHTTPClient(baseURL string, hc *http.Client) domain.Client {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &httpClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    hc,
	}
}

// Validate posts the key to validate.php. Transport failures, non-2xx
// statuses and bodies that are not a JSON object all come back as
// KindNetworkUnavailable so the caller can take the offline path.
func (c *httpClient) Validate(ctx context.Context, req domain.ValidateRequest) (*domain.RemoteResponse, []byte, error) {
	const op = "license.client.validate"

	body, err := c.post(ctx, "/validate.php", req)
	if err != nil {
		return nil, nil, apperror.New(apperror.KindNetworkUnavailable, op, err)
	}

	var resp domain.RemoteResponse
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil, apperror.New(apperror.KindNetworkUnavailable, op, domain.ErrBadResponse)
	}
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, nil, apperror.New(apperror.KindNetworkUnavailable, op, fmt.Errorf("%w: %v", domain.ErrBadResponse, err))
	}
	return &resp, trimmed, nil
}

func (c *httpClient) Deactivate(ctx context.Context, req domain.DeactivateRequest) error {
	if _, err := c.post(ctx, "/deactivate.php", req); err != nil {
		return apperror.New(apperror.KindNetworkUnavailable, "license.client.deactivate", err)
	}
	return nil
}

func (c *httpClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if c.baseURL == "" {
		return nil, apperror.New(apperror.KindConfiguration, "license.client", fmt.Errorf("license api url is not configured"))
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("license server returned status %d", res.StatusCode)
	}
	return body, nil
}
