package stripe

import (
	"context"
	"testing"

	"github.com/sergioaranda/forgeline-backend/pkg/config"
)

func TestNewClient_ValidatesKeyAgainstEnv(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name    string
		cfg     config.StripeConfig
		wantErr bool
	}{
		{
			name: "test env with test key",
			cfg:  config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_abc", Env: "test"},
		},
		{
			name:    "test env with live key",
			cfg:     config.StripeConfig{APIKey: "sk_live_123", Secret: "whsec_abc", Env: "test"},
			wantErr: true,
		},
		{
			name: "live env with live key",
			cfg:  config.StripeConfig{APIKey: "sk_live_123", Secret: "whsec_abc", Env: "live"},
		},
		{
			name:    "missing api key",
			cfg:     config.StripeConfig{Secret: "whsec_abc", Env: "test"},
			wantErr: true,
		},
		{
			name:    "missing webhook secret",
			cfg:     config.StripeConfig{APIKey: "sk_test_123", Env: "test"},
			wantErr: true,
		},
		{
			name:    "unknown env",
			cfg:     config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_abc", Env: "sandbox"},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(ctx, tc.cfg, nil)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client.API() == nil {
				t.Fatal("expected initialized api client")
			}
			if client.SigningSecret() != "whsec_abc" {
				t.Fatalf("unexpected signing secret %q", client.SigningSecret())
			}
		})
	}
}

func TestEnvironmentDefaultsToTest(t *testing.T) {
	env, err := normalizeEnv("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env != testEnv {
		t.Fatalf("expected default env %q, got %q", testEnv, env)
	}
}
