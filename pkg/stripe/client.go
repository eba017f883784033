package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/sergioaranda/forgeline-backend/pkg/config"
	"github.com/sergioaranda/forgeline-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

// secret key prefixes accepted per environment; a live key in a test deploy
// (or vice versa) is a misconfiguration we refuse to boot with
var envKeyPrefixes = map[string][]string{
	testEnv: {"sk_test", "rk_test"},
	liveEnv: {"sk_live", "rk_live"},
}

var (
	errAPIKeyRequired   = errors.New("stripe api key is required (FORGELINE_STRIPE_API_KEY)")
	errSecretRequired   = errors.New("stripe webhook signing secret is required (FORGELINE_STRIPE_WEBHOOK_SECRET)")
	errInvalidStripeEnv = fmt.Errorf("FORGELINE_STRIPE_ENV must be %q or %q", testEnv, liveEnv)
)

// Client wraps Stripe's API client plus env-specific metadata.
type Client struct {
	api           *stripe.Client
	environment   string
	signingSecret string
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.Secret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	api := stripe.NewClient(apiKey)
	stripe.Key = apiKey

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		api:           api,
		environment:   env,
		signingSecret: signingSecret,
	}, nil
}

// API returns the underlying Stripe API client.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	if _, ok := envKeyPrefixes[env]; !ok {
		return "", errInvalidStripeEnv
	}
	return env, nil
}

func validateAPIKey(env, key string) error {
	prefixes, ok := envKeyPrefixes[env]
	if !ok {
		return errInvalidStripeEnv
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return nil
		}
	}
	return fmt.Errorf("stripe environment %q requires a key prefixed %s", env, strings.Join(prefixes, "/"))
}
