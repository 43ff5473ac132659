// Package provider holds the HTTP plumbing shared by external service clients.
package provider

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Error is a failed call to an external provider.
type Error struct {
	Provider   string
	Op         string
	StatusCode int // zero for transport errors
	Body       string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Provider, e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same call may succeed.
func (e *Error) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ErrMissingKey is returned when a provider's API key is not configured.
var ErrMissingKey = errors.New("api key not set")

// Wrap turns a transport error into an *Error.
func Wrap(providerName, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Provider: providerName, Op: op, Err: err}
}

// Check returns an *Error for any non-2xx response, with a body snippet.
// The body is left unread on success.
func Check(resp *http.Response, providerName, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &Error{
		Provider:   providerName,
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
	}
}

// NewHTTPClient returns the process-wide client shared by all providers.
// http.Client is safe for concurrent use by fan-out stages.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 16
	return &http.Client{Timeout: timeout, Transport: transport}
}
