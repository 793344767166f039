package weather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

// Supported providers.
const (
	ProviderOpenWeather = "openweather"
	ProviderOpenMeteo   = "openmeteo"
)

const defaultFailureThreshold = 5

var (
	errUnexpectedStatus = errors.New("unexpected status code")
	errCircuitOpen      = errors.New("circuit breaker open")
	errMalformed        = errors.New("malformed upstream response")
)

// ProviderConfig configures an upstream weather provider.
type ProviderConfig struct {
	// HTTPClient overrides the transport (optional).
	HTTPClient *http.Client
	// Name selects the provider: openweather (default) or openmeteo.
	Name string
	// BaseURL overrides the public endpoint.
	BaseURL string
	// APIKey is required by openweather.
	APIKey string
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// NewProvider builds the configured provider.
func NewProvider(cfg *ProviderConfig) (Provider, error) {
	if cfg == nil {
		return nil, errors.New("provider config cannot be nil")
	}

	switch cfg.Name {
	case ProviderOpenWeather, "":
		if cfg.APIKey == "" {
			return nil, errors.New("openweather api key cannot be empty")
		}
		return newOpenWeather(cfg), nil
	case ProviderOpenMeteo:
		return newOpenMeteo(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported weather provider %q", cfg.Name)
	}
}

// upstream is a resty client guarded by a circuit breaker. It never retries.
type upstream struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
}

func newUpstream(name, baseURL string, cfg *ProviderConfig) *upstream {
	client := resty.New()
	if cfg.HTTPClient != nil {
		client = resty.NewWithClient(cfg.HTTPClient)
	}
	client.SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)

	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = defaultFailureThreshold
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller walking away says nothing about the upstream.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &upstream{client: client, breaker: breaker}
}

// get issues one GET and decodes a 2xx JSON body into out.
func (u *upstream) get(ctx context.Context, path string, params map[string]string, out any) error {
	_, err := u.breaker.Execute(func() (interface{}, error) {
		resp, err := u.client.R().
			SetContext(ctx).
			ForceContentType("application/json").
			SetQueryParams(params).
			SetResult(out).
			Get(path)
		if err != nil {
			return nil, err
		}
		if !resp.IsSuccess() {
			return nil, fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode())
		}
		return nil, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", errCircuitOpen, err)
	}
	return err
}

func coordinate(v float64) string {
	return fmt.Sprintf("%.6f", v)
}
