// Package clientconfig loads the optional per-sender overrides (greeting and custom commands).
package clientconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrConfigLoad marks a per-sender config that exists but could not be read or decoded.
// Callers treat it as "use defaults".
var ErrConfigLoad = errors.New("clientconfig: load failed")

// ClientConfig holds per-sender overrides. It is read-only at runtime.
type ClientConfig struct {
	Greeting       string            `json:"greeting,omitempty"`
	CustomCommands map[string]string `json:"custom_commands,omitempty"`
}

// Default returns an empty config: no greeting override and no commands.
func Default() ClientConfig {
	return ClientConfig{CustomCommands: map[string]string{}}
}

// Command returns the literal reply for an exact (normalized) keyword match.
func (c ClientConfig) Command(normalized string) (string, bool) {
	reply, ok := c.CustomCommands[normalized]
	if !ok || strings.TrimSpace(reply) == "" {
		return "", false
	}
	return reply, true
}

// Loader resolves the config for one sender. A missing config is not an error.
type Loader interface {
	Load(ctx context.Context, sender string) (ClientConfig, error)
}

// NormalizeKey applies the same normalization as inbound text: trimmed and lower-cased.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Decode parses a config document and normalizes its command keys.
func Decode(data []byte) (ClientConfig, error) {
	var raw ClientConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return Default(), fmt.Errorf("%w: %v", ErrConfigLoad, err)
	}
	cfg := Default()
	cfg.Greeting = strings.TrimSpace(raw.Greeting)
	for k, v := range raw.CustomCommands {
		key := NormalizeKey(k)
		if key == "" {
			continue
		}
		cfg.CustomCommands[key] = v
	}
	return cfg, nil
}

// StaticLoader returns the same config for every sender. Used when no backend is configured.
type StaticLoader struct {
	Config ClientConfig
}

func (s StaticLoader) Load(context.Context, string) (ClientConfig, error) {
	if s.Config.CustomCommands == nil {
		return Default(), nil
	}
	return s.Config, nil
}

// fileSafe maps a sender address onto a name usable as a file or object key
// ("whatsapp:+1555" -> "whatsapp_1555").
func fileSafe(sender string) string {
	var b strings.Builder
	for _, r := range sender {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-':
			b.WriteRune(r)
		case r == ':':
			b.WriteRune('_')
		}
	}
	return b.String()
}
