package stdlib

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lemonberrylabs/oida/pkg/types"
)

// MaxResponseSize is the maximum fetched body size (2 MB).
const MaxResponseSize = 2 * 1024 * 1024

// DefaultFetchTimeout bounds every fetch.
const DefaultFetchTimeout = 10 * time.Second

// Fetcher retrieves a URL for the holma builtin.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (types.Value, error)
}

// HTTPFetcher performs GET requests over net/http.
type HTTPFetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPFetcher creates a fetcher with the given timeout. A zero timeout
// selects DefaultFetchTimeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	// The default client follows up to 10 redirects.
	return &HTTPFetcher{Client: &http.Client{}, Timeout: timeout}
}

// Fetch GETs rawURL and decodes the body as JSON when possible, falling back
// to the raw text. Any status other than 200 is a FetchFailure.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (types.Value, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return types.Null, types.NewTypeError("holma braucht a gültige http(s) URL, ned %q", rawURL)
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return types.Null, types.NewFetchError(0, "Anfrage an %s ging ned: %v", rawURL, err)
	}
	req.Header.Set("Accept", "application/json, text/plain;q=0.9, */*;q=0.8")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return types.Null, types.NewFetchError(0, "Zeitüberschreitung bei %s nach %s", rawURL, timeout)
		}
		return types.Null, types.NewFetchError(0, "Anfrage an %s fehlgeschlagen: %v", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return types.Null, types.NewFetchError(resp.StatusCode, "Antwort von %s ned lesbar: %v", rawURL, err)
	}
	if len(body) > MaxResponseSize {
		return types.Null, types.NewFetchError(resp.StatusCode, "Antwort von %s größer als %d Bytes", rawURL, MaxResponseSize)
	}
	if resp.StatusCode != http.StatusOK {
		return types.Null, types.NewFetchError(resp.StatusCode,
			"HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return parseBody(body, resp.Header.Get("Content-Type")), nil
}

// parseBody decodes JSON bodies and returns everything else as text.
func parseBody(body []byte, contentType string) types.Value {
	if strings.Contains(contentType, "json") || isJSONLike(body) {
		var raw interface{}
		if err := json.Unmarshal(body, &raw); err == nil {
			return types.FromJSON(raw)
		}
	}
	return types.NewString(string(body))
}

func isJSONLike(data []byte) bool {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[', '"':
			return true
		default:
			return false
		}
	}
	return false
}

// FetchFunc adapts a plain function to the Fetcher interface.
type FetchFunc func(ctx context.Context, rawURL string) (types.Value, error)

// Fetch calls f.
func (f FetchFunc) Fetch(ctx context.Context, rawURL string) (types.Value, error) {
	return f(ctx, rawURL)
}

// DisabledFetcher rejects every fetch. Hosting surfaces use it when network
// access is switched off.
var DisabledFetcher = FetchFunc(func(_ context.Context, rawURL string) (types.Value, error) {
	return types.Null, types.NewFetchError(0, "holma is deaktiviert (%s)", rawURL)
})

var _ Fetcher = (*HTTPFetcher)(nil)
