package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// senderParam decodes the {sender} path segment. Senders such as
// "whatsapp:+1555..." arrive percent-encoded.
func senderParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "sender")
	sender, err := url.PathUnescape(raw)
	if err != nil || strings.TrimSpace(sender) == "" {
		jsonError(w, "sender is required", http.StatusBadRequest)
		return "", false
	}
	return strings.TrimSpace(sender), true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
