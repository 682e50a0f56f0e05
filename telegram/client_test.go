package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(apiResponse{Ok: true})
	}))
	defer srv.Close()
	t.Setenv("TELEGRAM_API_BASE_URL", srv.URL)

	client, err := NewClient("123:abc")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.SendMessage(context.Background(), "-100200300", "salom"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if gotPath != "/bot123:abc/sendMessage" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody.ChatId != "-100200300" || gotBody.Text != "salom" {
		t.Fatalf("unexpected body %+v", gotBody)
	}
}

func TestSendMessageApiRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(apiResponse{Ok: false, Description: "chat not found"})
	}))
	defer srv.Close()
	t.Setenv("TELEGRAM_API_BASE_URL", srv.URL)

	client, err := NewClient("123:abc")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.SendMessage(context.Background(), "bogus", "salom"); err == nil {
		t.Fatal("expected error for rejected message")
	}
}

func TestSendMessageHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()
	t.Setenv("TELEGRAM_API_BASE_URL", srv.URL)

	client, err := NewClient("bad-token")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.SendMessage(context.Background(), "-1", "salom"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatal("expected error for empty token")
	}
}
