package messenger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

func testConfig(baseURL string) Config {
	return Config{
		AccessToken:  "token",
		VerifyToken:  "verify-me",
		BaseURL:      baseURL,
		GraphVersion: "v20.0",
	}
}

func TestSplitMessageShortTextIsOneChunk(t *testing.T) {
	t.Parallel()

	got := SplitMessage("hola")
	if len(got) != 1 || got[0] != "hola" {
		t.Fatalf("SplitMessage() = %v", got)
	}
}

func TestSplitMessagePrefersSentenceBoundaries(t *testing.T) {
	t.Parallel()

	sentence := strings.Repeat("palabra ", 150) + "fin."
	text := sentence + " " + sentence

	chunks := SplitMessage(text)
	if len(chunks) < 2 {
		t.Fatalf("len(chunks) = %d, want at least 2", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > maxTextLength {
			t.Fatalf("chunk[%d] is %d bytes, above the limit", i, len(chunk))
		}
	}
	if !strings.HasSuffix(chunks[0], "fin.") {
		t.Fatalf("chunk[0] = %q..., want it to end at the sentence boundary", chunks[0][len(chunks[0])-20:])
	}
}

func TestSplitMessageHardCutsOversizedSentence(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", maxTextLength*2+10)
	chunks := SplitMessage(text)

	var total int
	for i, chunk := range chunks {
		if len(chunk) > maxTextLength {
			t.Fatalf("chunk[%d] is %d bytes, above the limit", i, len(chunk))
		}
		total += len(chunk)
	}
	if total != len(text) {
		t.Fatalf("reassembled length = %d, want %d", total, len(text))
	}
}

func TestSplitMessageCutsOnRuneBoundaries(t *testing.T) {
	t.Parallel()

	// Three-byte runes never divide the limit evenly, so a byte-offset
	// cut would split one across chunks.
	text := strings.Repeat("€", maxTextLength)
	chunks := SplitMessage(text)

	var rebuilt strings.Builder
	for i, chunk := range chunks {
		if len(chunk) > maxTextLength {
			t.Fatalf("chunk[%d] is %d bytes, above the limit", i, len(chunk))
		}
		if !utf8.ValidString(chunk) {
			t.Fatalf("chunk[%d] is not valid UTF-8", i)
		}
		rebuilt.WriteString(chunk)
	}
	if rebuilt.String() != text {
		t.Fatal("reassembled chunks differ from the original text")
	}
}

func TestSendTextDeliversChunksInOrder(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		texts []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Recipient struct {
				ID string `json:"id"`
			} `json:"recipient"`
			Message struct {
				Text string `json:"text"`
			} `json:"message"`
			MessagingType string `json:"messaging_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload.Recipient.ID != "psid-1" || payload.MessagingType != "RESPONSE" {
			t.Errorf("unexpected payload: %+v", payload)
		}
		if r.URL.Query().Get("access_token") != "token" {
			t.Errorf("access_token = %q", r.URL.Query().Get("access_token"))
		}
		mu.Lock()
		texts = append(texts, payload.Message.Text)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	cfg.ChunkDelay = 0
	client := MustNew(cfg)

	sentence := strings.Repeat("palabra ", 150) + "fin."
	text := sentence + " " + sentence
	if err := client.SendText(context.Background(), "psid-1", text); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(texts) < 2 {
		t.Fatalf("sent %d chunks, want at least 2", len(texts))
	}
	if !strings.HasPrefix(texts[0], "palabra") {
		t.Fatalf("first chunk = %q...", texts[0][:20])
	}
}

func TestSendTextStopsOnAPIFailure(t *testing.T) {
	t.Parallel()

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	cfg.ChunkDelay = 0
	client := MustNew(cfg)

	if err := client.SendText(context.Background(), "psid-1", strings.Repeat("a", maxTextLength+1)); err == nil {
		t.Fatal("expected an error for a non-2xx response")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want delivery to stop after the first failure", calls)
	}
}

func TestVerifyWebhook(t *testing.T) {
	t.Parallel()

	client := MustNew(testConfig("https://graph.facebook.com"))

	challenge, ok := client.VerifyWebhook("subscribe", "verify-me", "999")
	if !ok || challenge != "999" {
		t.Fatalf("VerifyWebhook() = %q, %v", challenge, ok)
	}
	if _, ok := client.VerifyWebhook("subscribe", "wrong", "999"); ok {
		t.Fatal("wrong token accepted")
	}
}
