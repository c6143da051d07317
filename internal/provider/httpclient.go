package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/craftscale/genbridge/internal/fault"
)

// upstream is the shared HTTP plumbing under every remote adapter: one
// circuit breaker and one timeout per provider, and a single place that
// classifies failures as transient or permanent. Provider wording never
// escapes this file un-sanitized.
type upstream struct {
	id      string
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func newUpstream(id, baseURL, apiKey string, timeout time.Duration) *upstream {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &upstream{
		id:      id,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    id,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("provider", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("provider circuit state change")
			},
		}),
	}
}

// postJSON sends a JSON request and decodes a JSON response through the
// circuit breaker.
func (u *upstream) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fault.Wrap(fault.KindProviderPermanent, "generation request could not be encoded", err)
	}
	return u.do(ctx, http.MethodPost, path, body, out)
}

// getJSON fetches and decodes a JSON response through the circuit
// breaker.
func (u *upstream) getJSON(ctx context.Context, path string, out any) error {
	return u.do(ctx, http.MethodGet, path, nil, out)
}

func (u *upstream) do(ctx context.Context, method, path string, body []byte, out any) error {
	_, err := u.breaker.Execute(func() (any, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.baseURL+path, rd)
		if err != nil {
			return nil, fault.Wrap(fault.KindProviderPermanent, "generation request invalid", err)
		}
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := u.client.Do(req)
		if err != nil {
			// Network errors and client timeouts re-enter the retry
			// policy.
			return nil, fault.Wrap(fault.KindProviderTransient, "generation service unavailable", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fault.Newf(fault.KindProviderTransient, "generation service returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			// The upstream body may name the provider; log it, never
			// propagate it.
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			log.Warn().
				Str("provider", u.id).
				Int("status", resp.StatusCode).
				Str("body", string(snippet)).
				Msg("provider rejected request")
			return nil, fault.Newf(fault.KindProviderPermanent, "generation request rejected (%d)", resp.StatusCode)
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fault.Wrap(fault.KindProviderTransient, "generation response unreadable", err)
			}
		}
		return nil, nil
	})
	if err == nil {
		return nil
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fault.Wrap(fault.KindProviderTransient, "generation service unavailable", err)
	}
	return err
}

// download fetches artifact bytes from a provider-returned URL.
func (u *upstream) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fault.Wrap(fault.KindProviderPermanent, "artifact url invalid", err)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.KindProviderTransient, "artifact download failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fault.Newf(fault.KindProviderTransient, "artifact download returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.KindProviderTransient, "artifact download failed", err)
	}
	if len(data) == 0 {
		return nil, fault.New(fault.KindProviderPermanent, "artifact empty")
	}
	return data, nil
}

func unsupported(id string, op Operation) error {
	return fault.New(fault.KindValidation, fmt.Sprintf("operation %s not supported by %s", op, id))
}
