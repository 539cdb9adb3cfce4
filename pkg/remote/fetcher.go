package remote

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/odbsync/pkg/errors"
	"github.com/sidkik/odbsync/pkg/version"
)

const (
	// DefaultMaxAttempts is the number of times a request is tried before
	// giving up: the first attempt plus nine retries.
	DefaultMaxAttempts = 10

	// DefaultBackoff is the wait between two attempts.
	DefaultBackoff = 3 * time.Second

	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 5 * time.Second

	// bodySnippetSize is how much of a failed response is logged.
	bodySnippetSize = 512
)

// Fetcher retrieves the body of a remote resource.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// RetryPolicy decides how often and how patiently a request is retried.
type RetryPolicy struct {
	MaxAttempts int

	// Backoff returns how long to wait after the given failed attempt.
	// Attempts are numbered from 1.
	Backoff func(attempt int) time.Duration
}

// DefaultRetryPolicy retries every failure with a fixed wait.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     FixedBackoff(DefaultBackoff),
	}
}

// FixedBackoff waits the same amount of time after every attempt.
func FixedBackoff(wait time.Duration) func(int) time.Duration {
	return func(int) time.Duration {
		return wait
	}
}

// HTTPFetcher issues authenticated GET requests against the remote API,
// retrying on any failure.
//
// Client errors aren't treated differently from server errors: every
// non-2xx response is retried the same way.
type HTTPFetcher struct {
	client *http.Client
	cookie string
	policy RetryPolicy
	clock  clockwork.Clock
}

// NewFetcher creates a fetcher that authenticates with the given session
// cookie.
func NewFetcher(cookie string, policy RetryPolicy) *HTTPFetcher {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if policy.Backoff == nil {
		policy.Backoff = FixedBackoff(DefaultBackoff)
	}

	return &HTTPFetcher{
		client: &http.Client{Timeout: DefaultTimeout},
		cookie: cookie,
		policy: policy,
		clock:  clockwork.NewRealClock(),
	}
}

// Fetch returns the body of url. It fails with an errors.FetchError once
// the retry policy is exhausted, or with the context's error if ctx is
// cancelled between attempts.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithContext(err, "fetch cancelled")
		}

		body, err := f.attempt(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if attempt == f.policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.WithContext(ctx.Err(), "fetch cancelled")
		case <-f.clock.After(f.policy.Backoff(attempt)):
		}
	}

	// A cancellation during the last attempt isn't a retry failure.
	if err := ctx.Err(); err != nil {
		return nil, errors.WithContext(err, "fetch cancelled")
	}
	return nil, errors.FetchError{
		Kind:     errors.ExhaustedRetries,
		URL:      url,
		Attempts: f.policy.MaxAttempts,
		Last:     lastErr,
	}
}

func (f *HTTPFetcher) attempt(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, errors.WithContext(err, "create request")
	}
	req = req.WithContext(ctx)
	req.Header.Set("cache-control", "no-cache")
	req.Header.Set("accept", "application/json;odata=verbose")
	req.Header.Set("cookie", f.cookie)
	req.Header.Set("user-agent", version.UserAgent())

	resp, err := f.client.Do(req)
	if err != nil {
		log.WithError(err).WithField("url", url).Warn("Request failed")
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := ioutil.ReadAll(io.LimitReader(resp.Body, bodySnippetSize))
		log.WithFields(log.Fields{
			"url":    url,
			"status": resp.StatusCode,
			"body":   string(snippet),
		}).Warn("Request returned an unsuccessful status")
		return nil, fmt.Errorf("server responded with %s", resp.Status)
	}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).WithField("url", url).Warn("Failed to read response")
		return nil, errors.WithContext(err, "read body")
	}
	return body, nil
}
