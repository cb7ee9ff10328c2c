package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Messenger rejects text messages above this length, so longer replies
// are split and delivered in order.
const maxTextLength = 2000

// Config is read from the environment with the MESSENGER prefix.
type Config struct {
	AccessToken  string        `split_words:"true" required:"true"`
	VerifyToken  string        `split_words:"true" required:"true"`
	BaseURL      string        `split_words:"true" default:"https://graph.facebook.com"`
	GraphVersion string        `split_words:"true" default:"v20.0"`
	Timeout      time.Duration `split_words:"true" default:"10s"`
	ChunkDelay   time.Duration `split_words:"true" default:"500ms"`
}

// Client sends text messages through the Messenger Send API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("messenger access token is required")
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

type sendPayload struct {
	Recipient     recipient `json:"recipient"`
	Message       message   `json:"message"`
	MessagingType string    `json:"messaging_type"`
}

type recipient struct {
	ID string `json:"id"`
}

type message struct {
	Text string `json:"text"`
}

// SendText delivers a text reply, splitting it into ordered chunks
// when it exceeds the platform limit. A short pause between chunks
// keeps them arriving in order.
func (c *Client) SendText(ctx context.Context, recipientID, text string) error {
	chunks := SplitMessage(text)
	for i, chunk := range chunks {
		if i > 0 && c.cfg.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.ChunkDelay):
			}
		}
		if err := c.sendChunk(ctx, recipientID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) sendChunk(ctx context.Context, recipientID, text string) error {
	payload, err := json.Marshal(sendPayload{
		Recipient:     recipient{ID: recipientID},
		Message:       message{Text: text},
		MessagingType: "RESPONSE",
	})
	if err != nil {
		return fmt.Errorf("marshal messenger payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/me/messages?access_token=%s", c.cfg.BaseURL, c.cfg.GraphVersion, c.cfg.AccessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build messenger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send messenger message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("messenger api status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

// VerifyWebhook answers the GET subscription handshake.
func (c *Client) VerifyWebhook(mode, token, challenge string) (string, bool) {
	if mode == "subscribe" && token == c.cfg.VerifyToken {
		return challenge, true
	}
	return "", false
}

var sentenceBoundary = regexp.MustCompile(`([.!?])\s+`)

// SplitMessage breaks text into chunks below the platform limit,
// preferring sentence boundaries so no sentence is cut mid-way.
func SplitMessage(text string) []string {
	if len(text) <= maxTextLength {
		return []string{text}
	}

	sentences := splitSentences(text)
	var (
		chunks  []string
		current strings.Builder
	)
	for _, sentence := range sentences {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > maxTextLength {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		// A single oversized sentence still has to be cut, on a rune
		// boundary so no multi-byte character is split across chunks.
		for len(sentence) > maxTextLength {
			cut := maxTextLength
			for cut > 0 && !utf8.RuneStart(sentence[cut]) {
				cut--
			}
			chunks = append(chunks, sentence[:cut])
			sentence = sentence[cut:]
		}
		current.WriteString(sentence)
		current.WriteByte(' ')
	}
	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	return chunks
}

func splitSentences(text string) []string {
	marked := sentenceBoundary.ReplaceAllString(text, "$1\x00")
	return strings.Split(marked, "\x00")
}
