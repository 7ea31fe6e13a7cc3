// Package policy implements the Sender/Loop Policy component (spec.md
// §4.7): allow-list evaluation, target normalization/classification, and
// the structural loop-guard marker detector used by the inbound pipeline.
package policy

import "strings"

var targetPrefixes = []string{"ringcentral:", "rc:", "chat:", "user:", "group:", "team:"}

// NormalizeTarget trims raw and iteratively strips any combination of the
// recognized scheme prefixes, returning "" if the result is empty.
func NormalizeTarget(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		stripped := false
		lower := strings.ToLower(s)
		for _, p := range targetPrefixes {
			if strings.HasPrefix(lower, p) {
				s = s[len(p):]
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	s = strings.TrimSpace(s)
	return s
}

// TargetKind classifies a normalized target per parseTarget (§4.7).
type TargetKind string

const (
	TargetChat    TargetKind = "chat"
	TargetUser    TargetKind = "user"
	TargetUnknown TargetKind = "unknown"
)

// ParseTarget classifies a raw target string.
func ParseTarget(raw string) (TargetKind, string) {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)

	switch {
	case strings.HasPrefix(lower, "chat:"):
		return TargetChat, trimmed[len("chat:"):]
	case strings.HasPrefix(lower, "group:"):
		return TargetChat, trimmed[len("group:"):]
	case strings.HasPrefix(lower, "team:"):
		return TargetChat, trimmed[len("team:"):]
	case strings.HasPrefix(lower, "user:"):
		return TargetUser, trimmed[len("user:"):]
	}

	if isNumeric(trimmed) {
		return TargetChat, trimmed
	}
	return TargetUnknown, raw
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeChatID applies the ChatId normalization rule from spec.md §3:
// the same prefix-stripping as NormalizeTarget, over the chat-id-specific
// prefix set.
func NormalizeChatID(raw string) string {
	return NormalizeTarget(raw)
}
