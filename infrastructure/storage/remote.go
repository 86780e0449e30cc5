package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteStore puts objects against an HTTP blob gateway. The gateway
// honours If-None-Match: * so an occupied path answers 412 instead of
// being replaced.
type RemoteStore struct {
	httpClient *resty.Client
	publicBase string
}

// RemoteConfig carries the gateway endpoints and credentials.
type RemoteConfig struct {
	BaseURL    string
	PublicBase string
	Token      string
}

// NewRemoteStore builds a resty-backed store for the configured
// gateway.
func NewRemoteStore(cfg RemoteConfig) (*RemoteStore, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("storage gateway base url is required")
	}
	publicBase := strings.TrimSuffix(strings.TrimSpace(cfg.PublicBase), "/")
	if publicBase == "" {
		publicBase = base
	}

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(30 * time.Second)
	if cfg.Token != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.Token)
	}

	return &RemoteStore{httpClient: client, publicBase: publicBase}, nil
}

type gatewayError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (s *RemoteStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	apiErr := new(gatewayError)

	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("If-None-Match", "*").
		SetBody(data).
		SetError(apiErr).
		Put("/" + strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("put %s: %w", path, err)
	}

	switch {
	case resp.StatusCode() == http.StatusPreconditionFailed:
		return "", fmt.Errorf("put %s: %w", path, ErrPathExists)
	case resp.StatusCode() >= http.StatusBadRequest:
		msg := apiErr.Message
		if msg == "" {
			msg = resp.Status()
		}
		return "", fmt.Errorf("put %s: gateway error: %s", path, msg)
	}
	return s.PublicURL(path), nil
}

func (s *RemoteStore) PublicURL(path string) string {
	return s.publicBase + "/" + strings.TrimPrefix(path, "/")
}
