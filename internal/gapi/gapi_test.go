package gapi

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/api/googleapi"

	"budgetflow/internal/core"
)

func TestWrapErr(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"nil", nil, false},
		{"rate limited", &googleapi.Error{Code: 429}, true},
		{"server error", &googleapi.Error{Code: 503}, true},
		{"not found", &googleapi.Error{Code: 404}, false},
		{"forbidden", &googleapi.Error{Code: 403}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := WrapErr(tc.err)
			if tc.err == nil {
				if wrapped != nil {
					t.Fatalf("nil in must stay nil, got %v", wrapped)
				}
				return
			}
			if got := core.IsTransient(wrapped); got != tc.transient {
				t.Errorf("IsTransient = %v, want %v", got, tc.transient)
			}
			if !errors.Is(wrapped, tc.err) {
				t.Error("original error lost in wrapping")
			}
		})
	}
}

func TestCredentialOptionsMissing(t *testing.T) {
	for _, key := range []string{
		"GOOGLE_SERVICE_ACCOUNT_JSON",
		"GOOGLE_SERVICE_ACCOUNT_FILE",
		"GOOGLE_APPLICATION_CREDENTIALS",
		"GOOGLE_OAUTH_CLIENT_FILE",
		"GOOGLE_OAUTH_TOKEN_FILE",
	} {
		t.Setenv(key, "")
	}
	if _, err := CredentialOptions(context.Background()); err == nil {
		t.Fatal("expected error when no credentials are configured")
	}
}
