package objstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/craftscale/genbridge/internal/fault"
)

// Fetcher downloads client-supplied input URLs. Transient network
// failures are retried with bounded exponential backoff.
type Fetcher struct {
	Client *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{Client: &http.Client{Timeout: 30 * time.Second}}
}

const fetchMaxAttempts = 5

// Fetch downloads a URL to bytes. Up to 5 attempts, base 200ms, capped
// at 5s between attempts. 4xx responses are not retried.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := f.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("input fetch returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("input fetch returned %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, fetchMaxAttempts-1), ctx))
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("input fetch failed after retries")
		return nil, fault.Wrap(fault.KindInputFetch, "input_fetch_failed", err)
	}
	return body, nil
}
