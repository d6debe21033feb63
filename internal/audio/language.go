package audio

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLanguagePrefixes maps calling-code prefixes to transcription language tags.
var DefaultLanguagePrefixes = map[string]string{
	"+966": "ar-SA",
	"+971": "ar-AE",
	"+20":  "ar-EG",
}

const DefaultLanguage = "en-US"

type prefixTag struct {
	prefix string
	tag    language.Tag
}

// LanguageTable picks a transcription language from the sender's number. It is a
// prefix heuristic, not content-based detection.
type LanguageTable struct {
	entries  []prefixTag
	fallback language.Tag
}

// NewLanguageTable validates every tag. A nil map uses DefaultLanguagePrefixes and an
// empty fallback uses DefaultLanguage.
func NewLanguageTable(prefixes map[string]string, fallback string) (*LanguageTable, error) {
	if prefixes == nil {
		prefixes = DefaultLanguagePrefixes
	}
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultLanguage
	}
	fb, err := language.Parse(fallback)
	if err != nil {
		return nil, fmt.Errorf("audio: invalid fallback language %q: %w", fallback, err)
	}

	t := &LanguageTable{fallback: fb}
	for prefix, raw := range prefixes {
		p := normalizeAddress(prefix)
		if p == "" || p == "+" {
			return nil, fmt.Errorf("audio: invalid language prefix %q", prefix)
		}
		tag, err := language.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("audio: invalid language tag %q for prefix %q: %w", raw, prefix, err)
		}
		t.entries = append(t.entries, prefixTag{prefix: p, tag: tag})
	}
	// longest prefix wins
	sort.Slice(t.entries, func(i, j int) bool {
		if len(t.entries[i].prefix) != len(t.entries[j].prefix) {
			return len(t.entries[i].prefix) > len(t.entries[j].prefix)
		}
		return t.entries[i].prefix < t.entries[j].prefix
	})
	return t, nil
}

// Lookup returns the BCP-47 tag for a sender.
func (t *LanguageTable) Lookup(sender string) string {
	return t.lookup(sender).String()
}

// BaseLanguage returns the ISO-639 language of the sender's tag, e.g. "ar".
func (t *LanguageTable) BaseLanguage(sender string) string {
	base, _ := t.lookup(sender).Base()
	return base.String()
}

func (t *LanguageTable) lookup(sender string) language.Tag {
	addr := normalizeAddress(sender)
	for _, e := range t.entries {
		if strings.HasPrefix(addr, e.prefix) {
			return e.tag
		}
	}
	return t.fallback
}

// normalizeAddress reduces "whatsapp:+966 50-123" or "96650123" to "+96650123".
func normalizeAddress(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	var b strings.Builder
	b.WriteByte('+')
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
