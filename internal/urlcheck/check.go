// Package urlcheck validates candidate source URLs and classifies them by
// the kind of source they point at.
package urlcheck

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/competitor-intel/internal/resilience"
)

const (
	// DefaultTimeout bounds one URL check.
	DefaultTimeout = 10 * time.Second
	userAgent      = "Mozilla/5.0 (compatible; competitor-intel/1.0)"
	maxRedirects   = 5
)

// Check is the outcome of probing a URL.
type Check struct {
	URL       string `json:"url"`
	Reachable bool   `json:"reachable"`
	FinalURL  string `json:"final_url,omitempty"`
	Status    int    `json:"status,omitempty"`
	// Err is set when the request could not complete at all.
	Err error `json:"-"`
}

// Validator probes URLs with HEAD requests.
type Validator struct {
	client *http.Client
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithHTTPClient replaces the default client. Redirect handling is left
// to the supplied client.
func WithHTTPClient(c *http.Client) ValidatorOption {
	return func(v *Validator) { v.client = c }
}

// NewValidator creates a Validator that follows up to five redirects.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: DefaultTimeout}).DialContext,
				TLSHandshakeTimeout: DefaultTimeout,
				MaxIdleConnsPerHost: 4,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// HeadCheck probes rawURL within timeout. Servers that reject HEAD with
// 405 are retried with GET. Any 2xx or 3xx final status is reachable.
func (v *Validator) HeadCheck(ctx context.Context, rawURL string, timeout time.Duration) Check {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := Check{URL: rawURL}
	resp, err := v.do(ctx, http.MethodHead, rawURL)
	if err == nil && resp.StatusCode == http.StatusMethodNotAllowed {
		resp, err = v.do(ctx, http.MethodGet, rawURL)
	}
	if err != nil {
		c.Err = resilience.NewCollaboratorError(resilience.KindURLValidation, "urlcheck", err)
		return c
	}

	c.Status = resp.StatusCode
	c.FinalURL = resp.Request.URL.String()
	c.Reachable = resp.StatusCode >= 200 && resp.StatusCode < 400
	return c
}

func (v *Validator) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "urlcheck: build %s request", method)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "urlcheck: %s %s", method, rawURL)
	}
	resp.Body.Close() //nolint:errcheck,gosec
	return resp, nil
}
