package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// Config configures the optimizer client.
type Config struct {
	BaseURL         string        `yaml:"url"`
	Token           string        `yaml:"token"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
	BackoffBase     time.Duration `yaml:"backoff_base"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

func DefaultConfig() Config {
	return Config{
		Timeout:         60 * time.Second,
		MaxAttempts:     3,
		BackoffBase:     time.Second,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// Enabled reports whether an optimizer endpoint is configured.
func (c Config) Enabled() bool {
	return c.BaseURL != ""
}

// Client calls the remote dispatch optimizer over HTTP.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker

	// OnStateChange, when set, observes circuit breaker transitions.
	OnStateChange func(from, to gobreaker.State)
}

func NewClient(cfg Config) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("optimizer url not set")
	}
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = def.BreakerCooldown
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "optimizer",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// the caller giving up says nothing about the optimizer's health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if c.OnStateChange != nil {
				c.OnStateChange(from, to)
			}
		},
	})
	return c, nil
}

// BreakerState returns the circuit breaker's current state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Optimize posts req to {base}/optimize. Every failure, including an open
// breaker, is wrapped as ErrRemoteOptimizer.
func (c *Client) Optimize(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %w", ErrRemoteOptimizer, err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doWithRetry(ctx, body)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteOptimizer, err)
	}
	return out.(*Response), nil
}

func (c *Client) doWithRetry(ctx context.Context, body []byte) (*Response, error) {
	var resp *Response
	var err error
	for attempt := range c.cfg.MaxAttempts {
		resp, err = c.do(ctx, body)
		if err == nil {
			return resp, nil
		}
		if !isRetryable(err) || ctx.Err() != nil || attempt == c.cfg.MaxAttempts-1 {
			break
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * c.cfg.BackoffBase
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", c.cfg.MaxAttempts, err)
}

func (c *Client) do(ctx context.Context, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/optimize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &apiError{statusCode: resp.StatusCode, message: "authentication failed, check the optimizer token"}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apiError{statusCode: resp.StatusCode, message: strings.TrimSpace(string(data))}
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &apiError{statusCode: resp.StatusCode, message: "decoding response: " + err.Error()}
	}
	if out.OptimalCapacityKWh < 0 || out.OptimalPowerKW < 0 {
		return nil, &apiError{statusCode: resp.StatusCode, message: "negative optimal sizing"}
	}
	return &out, nil
}
