package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/shared"
)

var ErrEmptyCredential = errors.New("session response carried no client secret")

// Credential is a short-lived key bound to one realtime session.
type Credential struct {
	Value     string
	Model     string
	ExpiresAt time.Time
}

type Service interface {
	AcquireCredential(ctx context.Context, cfg SessionConfig) (Credential, error)
	Negotiate(ctx context.Context, cred Credential, offerSDP string) (string, error)
}

type ServiceConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	// MaxSDPSize bounds the answer body.
	MaxSDPSize int64
}

// OpenAIService talks to the realtime sessions and SDP endpoints.
type OpenAIService struct {
	cfg    ServiceConfig
	client *http.Client
	log    *slog.Logger
}

var _ Service = (*OpenAIService)(nil)

func NewOpenAIService(cfg ServiceConfig, log *slog.Logger) *OpenAIService {
	if log == nil {
		log = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxSDPSize <= 0 {
		cfg.MaxSDPSize = 64 * 1024
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &OpenAIService{
		cfg:    cfg,
		client: client,
		log:    log.With("component", "realtime_service"),
	}
}

type sessionResponse struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

func (s *OpenAIService) AcquireCredential(ctx context.Context, cfg SessionConfig) (Credential, error) {
	body, err := json.Marshal(cfg)
	if err != nil {
		return Credential{}, fmt.Errorf("encode session config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/realtime/sessions", bytes.NewReader(body))
	if err != nil {
		return Credential{}, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("request session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Credential{}, statusError(resp)
	}

	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Credential{}, fmt.Errorf("decode session: %w", err)
	}
	if out.ClientSecret.Value == "" {
		return Credential{}, ErrEmptyCredential
	}

	model := out.Model
	if model == "" {
		model = cfg.Model
	}
	cred := Credential{Value: out.ClientSecret.Value, Model: model}
	if out.ClientSecret.ExpiresAt > 0 {
		cred.ExpiresAt = time.Unix(out.ClientSecret.ExpiresAt, 0)
	}
	s.log.Debug("credential acquired", "session", out.ID, "model", model, "expires_at", cred.ExpiresAt)
	return cred, nil
}

func (s *OpenAIService) Negotiate(ctx context.Context, cred Credential, offerSDP string) (string, error) {
	endpoint := s.cfg.BaseURL + "/realtime?model=" + url.QueryEscape(cred.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offerSDP))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+cred.Value)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sdp exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(resp)
	}

	answer, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxSDPSize))
	if err != nil {
		return "", fmt.Errorf("read answer: %w", err)
	}
	if len(bytes.TrimSpace(answer)) == 0 {
		return "", errors.New("empty sdp answer")
	}
	return string(answer), nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &shared.HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
