package whatsapp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config is read from the environment with the WHATSAPP prefix.
type Config struct {
	APIToken      string        `split_words:"true" required:"true"`
	PhoneNumberID string        `split_words:"true" required:"true"`
	VerifyToken   string        `split_words:"true" required:"true"`
	AppSecret     string        `split_words:"true"`
	BaseURL       string        `split_words:"true" default:"https://graph.facebook.com"`
	GraphVersion  string        `split_words:"true" default:"v19.0"`
	Timeout       time.Duration `split_words:"true" default:"10s"`
}

// Client sends text messages through the WhatsApp Cloud API and
// verifies inbound webhooks.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("whatsapp api token is required")
	}
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, errors.New("whatsapp phone number id is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

type textPayload struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

// SendText delivers one text message to a recipient.
func (c *Client) SendText(ctx context.Context, recipientID, text string) error {
	payload, err := json.Marshal(textPayload{
		MessagingProduct: "whatsapp",
		To:               NormalizeRecipient(recipientID),
		Type:             "text",
		Text:             textBody{Body: text},
	})
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.cfg.BaseURL, c.cfg.GraphVersion, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp api status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

// NormalizeRecipient fixes Mexican mobile numbers, which the API
// reports with an extra "1" after the country code that the send
// endpoint rejects.
func NormalizeRecipient(id string) string {
	if strings.HasPrefix(id, "521") && len(id) == 13 {
		return "52" + id[3:]
	}
	return id
}

// VerifyWebhook answers the GET handshake Meta performs when the
// webhook is registered. It returns the challenge to echo and whether
// the token matched.
func (c *Client) VerifyWebhook(mode, token, challenge string) (string, bool) {
	if mode == "subscribe" && token == c.cfg.VerifyToken {
		return challenge, true
	}
	return "", false
}

// VerifySignature checks the X-Hub-Signature-256 header against the
// raw request body. With no app secret configured the check is
// skipped; the caller decides whether that is acceptable.
func (c *Client) VerifySignature(body []byte, header string) bool {
	if c.cfg.AppSecret == "" {
		return true
	}
	signature := strings.TrimPrefix(header, "sha256=")
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.cfg.AppSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
