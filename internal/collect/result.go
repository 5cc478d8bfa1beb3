package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/TobiSchelling/cropscope/internal/country"
)

// ProviderName identifies one of the fixed data providers.
type ProviderName string

const (
	Statistics ProviderName = "statistics"
	Climate    ProviderName = "climate"
	Market     ProviderName = "market"
	Imagery    ProviderName = "imagery"
)

// Providers lists every provider in reporting order.
var Providers = []ProviderName{Statistics, Climate, Market, Imagery}

// Display sentinels.
const (
	NotAvailable = "N/A"
	KeyRequired  = "N/A (API key required)"
)

// ReasonNoIdentifier is reported when the resolver found no identifier in the
// provider's scheme.
const ReasonNoIdentifier = "identifier not found"

// Result is the outcome of one provider fetch: either a value or the reason
// the provider was unavailable.
type Result[T any] struct {
	Value  T
	Reason string
	ok     bool
}

// Success wraps a fetched value.
func Success[T any](v T) Result[T] {
	return Result[T]{Value: v, ok: true}
}

// Unavailable records why a provider produced nothing.
func Unavailable[T any](reason string) Result[T] {
	return Result[T]{Reason: reason}
}

// OK reports whether the result carries a value.
func (r Result[T]) OK() bool {
	return r.ok
}

// Request is what an adapter needs to answer one query: the resolved
// country identifiers plus the commodity asked about.
type Request struct {
	country.Identifiers
	Commodity string
}

// Adapter fetches one provider's snapshot. Fetch never returns an error;
// every failure becomes Unavailable.
type Adapter[T any] interface {
	Name() ProviderName
	Fetch(ctx context.Context, req Request) Result[T]
}

// NewHTTPClient returns a traced client for provider calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Timeout:   timeout,
	}
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.Code)
}

func (e *StatusError) HTTPStatus() int {
	return e.Code
}

// getJSON issues a GET and decodes a 2xx JSON body into out. display is the
// URL used in errors, so credentials in the query string stay out of logs.
func getJSON(ctx context.Context, client *http.Client, rawURL, display string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		// url.Error repeats the full URL, credentials included.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("request %s: %w", display, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{URL: display, Code: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", display, err)
	}
	return nil
}
