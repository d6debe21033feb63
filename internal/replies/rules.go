package replies

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Action is what a matched rule does.
type Action string

const (
	ActionGreeting Action = "greeting"
	ActionHelp     Action = "help"
	ActionInfo     Action = "info"
	ActionReset    Action = "reset"
	ActionGoodbye  Action = "goodbye"
)

// MatchMode decides how keywords are compared with the normalized input.
type MatchMode string

const (
	MatchContains MatchMode = "contains"
	MatchEquals   MatchMode = "equals"
)

// Rule maps a locale-tagged keyword set to an action. Rules are evaluated in order.
type Rule struct {
	Action   Action    `yaml:"action"`
	Locale   string    `yaml:"locale"`
	Match    MatchMode `yaml:"match"`
	Keywords []string  `yaml:"keywords"`
	Reply    string    `yaml:"reply"`
	// KeywordOnly rules only apply when no completion client is configured.
	KeywordOnly bool `yaml:"keyword_only"`
}

// Matches reports whether the already normalized text triggers the rule.
func (r Rule) Matches(normalized string) bool {
	for _, kw := range r.Keywords {
		switch r.Match {
		case MatchEquals:
			if normalized == kw {
				return true
			}
		default:
			if strings.Contains(normalized, kw) {
				return true
			}
		}
	}
	return false
}

// RuleSet is the ordered matching policy plus the replies used outside of rules.
type RuleSet struct {
	Rules         []Rule `yaml:"rules"`
	NotUnderstood string `yaml:"not_understood"`
	ResetFailed   string `yaml:"reset_failed"`
}

const (
	defaultGreeting      = "👋 Hello! / أهلاً وسهلاً! كيف أقدر أساعدك؟"
	defaultHelp          = "🤖 You can say hello, info, or ask anything!\nيمكنك قول: هلا، مساعدة، أو اسألني أي شيء."
	defaultInfo          = "ℹ️ I'm a smart WhatsApp bot. Soon I'll be connected to AI!\nأنا بوت واتساب ذكي، وقريبًا سأكون مدعومًا بالذكاء الاصطناعي."
	defaultReset         = "🔄 Conversation reset. Let's start over!\nتمت إعادة تعيين المحادثة. لنبدأ من جديد!"
	defaultGoodbye       = "👋 Goodbye! Talk soon.\nإلى اللقاء!"
	defaultNotUnderstood = "❓ I didn’t understand that.\nلم أفهم ما قلته. جرب 'help' أو 'مساعدة'."
	defaultResetFailed   = "⚠️ I couldn't reset the conversation. Please try again.\nتعذّر إعادة تعيين المحادثة. حاول مرة أخرى."
)

// DefaultRuleSet returns the built-in English/Arabic rules.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		Rules: []Rule{
			{Action: ActionGreeting, Locale: "en", Match: MatchContains, Keywords: []string{"hello", "hi"}, Reply: defaultGreeting},
			{Action: ActionGreeting, Locale: "ar", Match: MatchContains, Keywords: []string{"هلا", "سلام"}, Reply: defaultGreeting},
			{Action: ActionHelp, Locale: "en", Match: MatchContains, Keywords: []string{"help"}, Reply: defaultHelp},
			{Action: ActionHelp, Locale: "ar", Match: MatchContains, Keywords: []string{"مساعدة"}, Reply: defaultHelp},
			{Action: ActionInfo, Locale: "en", Match: MatchContains, Keywords: []string{"info"}, Reply: defaultInfo},
			{Action: ActionInfo, Locale: "ar", Match: MatchContains, Keywords: []string{"معلومات"}, Reply: defaultInfo},
			{Action: ActionReset, Locale: "en", Match: MatchEquals, Keywords: []string{"reset", "restart", "/reset"}, Reply: defaultReset},
			{Action: ActionReset, Locale: "ar", Match: MatchEquals, Keywords: []string{"إعادة", "إعادة تعيين", "ابدأ من جديد"}, Reply: defaultReset},
			{Action: ActionGoodbye, Locale: "en", Match: MatchContains, Keywords: []string{"bye", "goodbye"}, Reply: defaultGoodbye, KeywordOnly: true},
			{Action: ActionGoodbye, Locale: "ar", Match: MatchContains, Keywords: []string{"وداعا", "إلى اللقاء"}, Reply: defaultGoodbye, KeywordOnly: true},
		},
		NotUnderstood: defaultNotUnderstood,
		ResetFailed:   defaultResetFailed,
	}
}

// LoadRuleSet reads a YAML rule file. An empty path returns the defaults.
func LoadRuleSet(path string) (*RuleSet, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRuleSet(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replies: read rules %s: %w", path, err)
	}
	return ParseRuleSet(data)
}

// ParseRuleSet decodes and validates a YAML rule document. Keywords are normalized
// the same way inbound text is.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("replies: decode rules: %w", err)
	}
	if strings.TrimSpace(rs.ResetFailed) == "" {
		rs.ResetFailed = defaultResetFailed
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	for i := range rs.Rules {
		rs.Rules[i].Keywords = normalizeKeywords(rs.Rules[i].Keywords)
		if rs.Rules[i].Match == "" {
			rs.Rules[i].Match = MatchContains
		}
	}
	return &rs, nil
}

// Validate checks the set can always produce a reply.
func (rs *RuleSet) Validate() error {
	if rs == nil {
		return errors.New("replies: rule set is nil")
	}
	if strings.TrimSpace(rs.NotUnderstood) == "" {
		return errors.New("replies: not_understood reply is required")
	}
	for i, r := range rs.Rules {
		switch r.Action {
		case ActionGreeting, ActionHelp, ActionInfo, ActionReset, ActionGoodbye:
		default:
			return fmt.Errorf("replies: rule %d: unknown action %q", i, r.Action)
		}
		switch r.Match {
		case "", MatchContains, MatchEquals:
		default:
			return fmt.Errorf("replies: rule %d: unknown match mode %q", i, r.Match)
		}
		if len(normalizeKeywords(r.Keywords)) == 0 {
			return fmt.Errorf("replies: rule %d (%s): at least one keyword is required", i, r.Action)
		}
		if strings.TrimSpace(r.Reply) == "" {
			return fmt.Errorf("replies: rule %d (%s): reply is required", i, r.Action)
		}
	}
	return nil
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		if n := Normalize(kw); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Normalize trims and lower-cases inbound text before matching.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
