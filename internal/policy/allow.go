package policy

import "strings"

var senderPrefixes = []string{"ringcentral:", "rc:", "user:"}

// IsSenderAllowed implements isSenderAllowed(senderId, allowFrom[]) from
// spec.md §4.7: wildcard, case-insensitive comparison after trimming and
// stripping one recognized prefix, ignoring empty entries.
func IsSenderAllowed(senderID string, allowFrom []string) bool {
	sender := normalizeSender(senderID)

	for _, entry := range allowFrom {
		trimmed := strings.TrimSpace(entry)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			return true
		}
		if normalizeSender(trimmed) == sender {
			return true
		}
	}
	return false
}

func normalizeSender(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, p := range senderPrefixes {
		if strings.HasPrefix(s, p) {
			s = s[len(p):]
			break
		}
	}
	return s
}
