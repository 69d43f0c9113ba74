package mpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	logging "github.com/ipfs/go-log/v2"
	"github.com/shinyyama/sensor-market/internal/metrics"
)

var log = logging.Logger("mpc")

var (
	ErrUnknownCircuit = errors.New("mpc: unknown circuit")
	ErrRejected       = errors.New("mpc: request rejected by gateway")
)

// Submitter queues a computation on the secure-computation cluster. It
// returns once the request is accepted; the result arrives as a Callback.
type Submitter interface {
	Submit(ctx context.Context, req Request) error
}

type submission struct {
	Circuit       string  `json:"circuit"`
	RoutingKey    uint32  `json:"routingKey"`
	ComputationID uint64  `json:"computationId"`
	CallbackURL   string  `json:"callbackUrl,omitempty"`
	Args          Request `json:"args"`
}

// Client submits requests to the cluster gateway over HTTP.
type Client struct {
	baseURL     string
	callbackURL string
	httpClient  *http.Client
	newBackOff  func() backoff.BackOff
}

func NewClient(baseURL, callbackURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		callbackURL: callbackURL,
		httpClient:  httpClient,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 5 * time.Second
			return b
		},
	}
}

// SetBackOff replaces the retry policy used for transient gateway failures.
func (c *Client) SetBackOff(f func() backoff.BackOff) {
	c.newBackOff = f
}

func (c *Client) Submit(ctx context.Context, req Request) error {
	if c == nil || c.baseURL == "" {
		return errors.New("mpc gateway is not configured")
	}
	key, ok := RoutingKey(req.Circuit())
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCircuit, req.Circuit())
	}
	payload, err := json.Marshal(submission{
		Circuit:       req.Circuit(),
		RoutingKey:    key,
		ComputationID: req.Computation(),
		CallbackURL:   c.callbackURL,
		Args:          req,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	attempt := 0
	op := func() error {
		attempt++
		return c.post(ctx, payload)
	}
	err = backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx))
	metrics.MPCSubmitDuration.WithLabelValues(req.Circuit()).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Warnw("submit failed", "circuit", req.Circuit(), "computation", req.Computation(), "attempts", attempt, "err", err)
		return err
	}
	log.Debugw("submitted", "circuit", req.Circuit(), "computation", req.Computation(), "attempts", attempt)
	return nil
}

func (c *Client) post(ctx context.Context, payload []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/computations", bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrRejected, err))
		}
		return err
	}
	return nil
}
