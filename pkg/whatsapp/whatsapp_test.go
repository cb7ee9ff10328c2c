package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testConfig(baseURL string) Config {
	return Config{
		APIToken:      "token",
		PhoneNumberID: "12345",
		VerifyToken:   "verify-me",
		BaseURL:       baseURL,
		GraphVersion:  "v19.0",
	}
}

func TestNormalizeRecipient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"5215512345678", "525512345678"},
		{"525512345678", "525512345678"},
		{"5215512", "5215512"},
		{"15551234567", "15551234567"},
	}
	for _, tt := range tests {
		if got := NormalizeRecipient(tt.in); got != tt.want {
			t.Fatalf("NormalizeRecipient(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSendText(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotPayload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := MustNew(testConfig(server.URL))
	if err := client.SendText(context.Background(), "5215512345678", "hola"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}

	if gotPath != "/v19.0/12345/messages" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer token" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotPayload["messaging_product"] != "whatsapp" || gotPayload["type"] != "text" {
		t.Fatalf("payload = %v", gotPayload)
	}
	if gotPayload["to"] != "525512345678" {
		t.Fatalf("to = %v, want the normalized number", gotPayload["to"])
	}
	text := gotPayload["text"].(map[string]any)
	if text["body"] != "hola" {
		t.Fatalf("body = %v", text["body"])
	}
}

func TestSendTextAPIFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad token"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client := MustNew(testConfig(server.URL))
	if err := client.SendText(context.Background(), "525512345678", "hola"); err == nil {
		t.Fatal("expected an error for a non-2xx response")
	}
}

func TestVerifyWebhook(t *testing.T) {
	t.Parallel()

	client := MustNew(testConfig("https://graph.facebook.com"))

	challenge, ok := client.VerifyWebhook("subscribe", "verify-me", "12345")
	if !ok || challenge != "12345" {
		t.Fatalf("VerifyWebhook() = %q, %v", challenge, ok)
	}

	if _, ok := client.VerifyWebhook("subscribe", "wrong", "12345"); ok {
		t.Fatal("wrong token accepted")
	}
	if _, ok := client.VerifyWebhook("unsubscribe", "verify-me", "12345"); ok {
		t.Fatal("wrong mode accepted")
	}
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	cfg := testConfig("https://graph.facebook.com")
	cfg.AppSecret = "s3cret"
	client := MustNew(cfg)

	body := []byte(`{"object":"whatsapp_business_account"}`)
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(body)
	header := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if !client.VerifySignature(body, header) {
		t.Fatal("valid signature rejected")
	}
	if client.VerifySignature(body, "sha256=deadbeef") {
		t.Fatal("forged signature accepted")
	}
	if client.VerifySignature(body, "") {
		t.Fatal("missing header accepted")
	}
}

func TestVerifySignatureSkippedWithoutSecret(t *testing.T) {
	t.Parallel()

	client := MustNew(testConfig("https://graph.facebook.com"))
	if !client.VerifySignature([]byte("anything"), "") {
		t.Fatal("signature check must pass when no app secret is configured")
	}
}
