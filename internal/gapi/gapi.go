// Package gapi holds what the Google API adapters share: credential
// discovery from the environment and transport-error classification.
package gapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"budgetflow/internal/core"
)

// Scopes the worker needs: full Drive access for folder lifecycle moves
// and Sheets access for the ledger.
var Scopes = []string{
	"https://www.googleapis.com/auth/drive",
	"https://www.googleapis.com/auth/spreadsheets",
}

// CredentialOptions builds client options from the environment, in order
// of preference: inline service-account JSON, a service-account file, or
// an installed-app OAuth client plus the token written by cmd/oauth-init.
func CredentialOptions(ctx context.Context) ([]option.ClientOption, error) {
	if saJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); saJSON != "" {
		return []option.ClientOption{
			option.WithCredentialsJSON([]byte(saJSON)),
			option.WithScopes(Scopes...),
		}, nil
	}

	saFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if saFile == "" {
		saFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if saFile != "" {
		return []option.ClientOption{
			option.WithCredentialsFile(saFile),
			option.WithScopes(Scopes...),
		}, nil
	}

	clientFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"))
	tokenFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE"))
	if clientFile != "" && tokenFile != "" {
		ts, err := tokenSourceFromFiles(ctx, clientFile, tokenFile)
		if err != nil {
			return nil, err
		}
		return []option.ClientOption{option.WithTokenSource(ts)}, nil
	}

	return nil, errors.New("missing Google credentials: set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS, or GOOGLE_OAUTH_CLIENT_FILE with GOOGLE_OAUTH_TOKEN_FILE")
}

func tokenSourceFromFiles(ctx context.Context, clientFile, tokenFile string) (oauth2.TokenSource, error) {
	clientJSON, err := os.ReadFile(clientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(clientJSON, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client: %w", err)
	}
	tokenJSON, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return cfg.TokenSource(ctx, &tok), nil
}

// WrapErr classifies an API call failure. Rate limiting, server-side
// errors and network failures are marked transient so the retry policy
// picks them up; anything else passes through unchanged.
func WrapErr(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return core.MarkTransient(err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return core.MarkTransient(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.MarkTransient(err)
	}

	return err
}
