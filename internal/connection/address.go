package connection

import "strings"

// maxPhoneDigits is the E.164 limit. Longer numeric tokens are legacy group ids.
const maxPhoneDigits = 15

// ResolveTarget turns a phone number, group token or qualified id into a chat id.
//
//	"+15551234567" -> "15551234567@c.us"
//	"15551234567"  -> "15551234567@c.us"
//	"xyz@c.us"     -> "xyz@c.us"
//	"abcGroupId"   -> "abcGroupId@g.us"
func ResolveTarget(target, individualSuffix, groupSuffix string) string {
	target = strings.TrimSpace(target)
	if strings.Contains(target, "@") {
		return target
	}
	if strings.HasPrefix(target, "+") {
		return digitsOnly(target) + individualSuffix
	}
	if target != "" && len(target) <= maxPhoneDigits && digitsOnly(target) == target {
		return target + individualSuffix
	}
	return target + groupSuffix
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
