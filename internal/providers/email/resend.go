package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type ResendConfig struct {
	APIKey string
	URL    string
	From   string
}

// ResendProvider posts messages to the Resend HTTP API.
type ResendProvider struct {
	cfg    ResendConfig
	client *http.Client
}

func NewResend(cfg ResendConfig, client *http.Client) *ResendProvider {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.URL == "" {
		cfg.URL = "https://api.resend.com/emails"
	}
	return &ResendProvider{cfg: cfg, client: client}
}

func (p *ResendProvider) Name() string { return "resend" }

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (p *ResendProvider) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	body, err := json.Marshal(resendRequest{From: p.cfg.From, To: msg.To, Subject: msg.Subject, HTML: msg.HTML})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("resend: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
