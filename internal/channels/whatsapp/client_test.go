package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendTextMessage(t *testing.T) {
	var received SendRequest
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if r.Header.Get("Authorization") != "Bearer test_token" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Error(err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.out"}]}`))
	}))
	defer server.Close()

	client := NewClient("test_token", "PNID")
	client.SetGraphAPIBase(server.URL)

	id, err := client.SendTextMessage(context.Background(), "+966501234567", "Hello from bot")
	if err != nil {
		t.Fatal(err)
	}
	if id != "wamid.out" {
		t.Errorf("id = %s, want wamid.out", id)
	}
	if path != "/PNID/messages" {
		t.Errorf("path = %s", path)
	}
	if received.To != "966501234567" || received.Type != "text" || received.Text.Body != "Hello from bot" {
		t.Errorf("unexpected payload %+v", received)
	}
	if received.MessagingProduct != "whatsapp" {
		t.Errorf("messaging_product = %s", received.MessagingProduct)
	}
}

func TestSendTextMessageAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Recipient not allowed","type":"OAuthException","code":131030}}`))
	}))
	defer server.Close()

	client := NewClient("token", "PNID")
	client.SetGraphAPIBase(server.URL)

	_, err := client.SendTextMessage(context.Background(), "1555", "hi")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != 131030 {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestSendTextMessageRequiresCredentials(t *testing.T) {
	if _, err := NewClient("", "PNID").SendTextMessage(context.Background(), "1", "x"); err == nil {
		t.Error("expected error without token")
	}
}
