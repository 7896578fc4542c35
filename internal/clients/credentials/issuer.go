package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Issuer hands out the current list of API keys.
type Issuer interface {
	Keys(ctx context.Context) ([]string, error)
}

// IssuerResponse is the body returned by the key issuing endpoint.
type IssuerResponse struct {
	Status    string   `json:"status"`
	Keys      []string `json:"keys"`
	Timestamp int64    `json:"timestamp,omitempty"`
	KeysCount int      `json:"keysCount,omitempty"`
}

// Validate accepts only {status: "success", keys: [non-empty]}.
func (r *IssuerResponse) Validate() error {
	if r.Status != "success" {
		return fmt.Errorf("%w: status %q", ErrIssuerUnavailable, r.Status)
	}
	var valid int
	for _, k := range r.Keys {
		if k != "" {
			valid++
		}
	}
	if valid == 0 {
		return fmt.Errorf("%w: empty key list", ErrIssuerUnavailable)
	}
	return nil
}

// HTTPIssuer fetches keys from a remote endpoint. Cookies set by the endpoint
// are kept and replayed, so session-bound issuers work.
type HTTPIssuer struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPIssuer(endpoint string, timeout time.Duration) (*HTTPIssuer, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &HTTPIssuer{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}, nil
}

func (i *HTTPIssuer) Keys(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrIssuerUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIssuerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: HTTP %d", ErrIssuerUnavailable, resp.StatusCode)
	}

	var body IssuerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrIssuerUnavailable, err)
	}
	if err := body.Validate(); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(body.Keys))
	for _, k := range body.Keys {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
