// Package credits is the boundary to the external credit/subscription
// subsystem. The core only needs a pre-check: reserve(user, op) before
// enqueueing work.
package credits

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftscale/genbridge/internal/fault"
)

// Reserver answers whether a user may spend on an operation.
type Reserver interface {
	Reserve(ctx context.Context, userID, operation string) error
}

// AllowAll is the fallback when no credit service is configured.
type AllowAll struct{}

func (AllowAll) Reserve(ctx context.Context, userID, operation string) error { return nil }

// HTTP calls the external credit service. 402 maps to the
// insufficient_credits fault; transport failures deny nothing (billing
// outages must not take generation down).
type HTTP struct {
	url    string
	client *http.Client
}

func NewHTTP(url string) *HTTP {
	return &HTTP{url: url, client: &http.Client{Timeout: 5 * time.Second}}
}

func (c *HTTP) Reserve(ctx context.Context, userID, operation string) error {
	body, _ := json.Marshal(map[string]string{"user_id": userID, "operation": operation})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/reserve", bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("credit service unreachable, allowing request")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired {
		return fault.New(fault.KindInsufficientCredits, "insufficient_credits")
	}
	return nil
}
