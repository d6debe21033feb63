package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	secret := "test_app_secret"
	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	validSig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, body, validSig, true},
		{"wrong signature", secret, body, "sha256=0000000000000000000000000000000000000000000000000000000000000000", false},
		{"empty signature", secret, body, "", false},
		{"empty secret", "", body, validSig, false},
		{"missing prefix", secret, body, "abcdef", false},
		{"tampered body", secret, []byte(`tampered`), validSig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifySignature(tt.secret, tt.body, tt.signature)
			if got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyChallenge(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantOK    bool
		wantValue string
	}{
		{"matching token", "hub.mode=subscribe&hub.verify_token=secret&hub.challenge=xyz123", true, "xyz123"},
		{"matching token without mode", "hub.verify_token=secret&hub.challenge=xyz123", true, "xyz123"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=xyz123", false, ""},
		{"missing token", "hub.challenge=xyz123", false, ""},
		{"matching token with other mode", "hub.mode=unsubscribe&hub.verify_token=secret&hub.challenge=xyz123", true, "xyz123"},
		{"wrong token with subscribe mode", "hub.mode=subscribe&hub.verify_token=secret2&hub.challenge=xyz123", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			got, ok := VerifyChallenge(q, "secret")
			if ok != tt.wantOK || got != tt.wantValue {
				t.Errorf("VerifyChallenge() = (%q, %v), want (%q, %v)", got, ok, tt.wantValue, tt.wantOK)
			}
		})
	}

	q, _ := url.ParseQuery("hub.verify_token=&hub.challenge=x")
	if _, ok := VerifyChallenge(q, ""); ok {
		t.Error("empty configured token must never verify")
	}
}

func TestFirstMessage(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		body := []byte(`{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{
			"messaging_product":"whatsapp","metadata":{"display_phone_number":"15550000000","phone_number_id":"PNID"},
			"messages":[{"from":"966501234567","id":"wamid.1","timestamp":"1700000000","type":"text","text":{"body":"Hello"}}]}}]}]}`)
		msg, meta, err := FirstMessage(body)
		if err != nil {
			t.Fatal(err)
		}
		if msg.From != "966501234567" || msg.Type != "text" || msg.Text.Body != "Hello" {
			t.Errorf("unexpected message %+v", msg)
		}
		if meta.PhoneNumberID != "PNID" {
			t.Errorf("phone number id = %s", meta.PhoneNumberID)
		}
	})

	t.Run("audio", func(t *testing.T) {
		body := []byte(`{"entry":[{"changes":[{"value":{"messages":[{"from":"1555","id":"wamid.2","type":"audio","audio":{"id":"MEDIA1","mime_type":"audio/ogg; codecs=opus","voice":true}}]}}]}]}`)
		msg, _, err := FirstMessage(body)
		if err != nil {
			t.Fatal(err)
		}
		if msg.Audio == nil || msg.Audio.ID != "MEDIA1" {
			t.Errorf("audio not parsed: %+v", msg)
		}
	})

	t.Run("status only", func(t *testing.T) {
		body := []byte(`{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.3","status":"delivered"}]}}]}]}`)
		msg, _, err := FirstMessage(body)
		if err != nil || msg != nil {
			t.Errorf("expected (nil, nil), got (%v, %v)", msg, err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		for _, body := range []string{`{`, `{"entry":[]}`, `{"entry":[{"changes":[]}]}`, `{"entry":[{"changes":[{"value":{"messages":[{"type":"text"}]}}]}]}`} {
			if _, _, err := FirstMessage([]byte(body)); err == nil {
				t.Errorf("expected error for %s", body)
			}
		}
	})
}
