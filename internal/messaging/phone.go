package messaging

import (
	"regexp"
	"strings"
)

var phoneDigitsRe = regexp.MustCompile(`\d+`)

const whatsappPrefix = "whatsapp:"

// NormalizeE164 ensures the value begins with + and only contains digits afterward.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	digits := sanitizePhone(value)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// NormalizeTwilioAddress keeps the whatsapp: channel prefix Twilio needs to route
// replies and normalizes the number behind it.
func NormalizeTwilioAddress(value string) string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(strings.ToLower(value), whatsappPrefix) {
		if n := NormalizeE164(value[len(whatsappPrefix):]); n != "" {
			return whatsappPrefix + n
		}
		return ""
	}
	return NormalizeE164(value)
}

func sanitizePhone(value string) string {
	if value == "" {
		return ""
	}
	digits := phoneDigitsRe.FindAllString(value, -1)
	return strings.Join(digits, "")
}
