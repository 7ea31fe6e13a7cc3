package policy

import "regexp"

// LoopGuardKind identifies which structural marker matched, purely for
// logging; the pipeline only cares whether one matched at all.
type LoopGuardKind string

const (
	LoopGuardNone           LoopGuardKind = ""
	LoopGuardThinking       LoopGuardKind = "thinking"
	LoopGuardAnswerWrapper  LoopGuardKind = "answer_wrapper"
	LoopGuardQueuedBusy     LoopGuardKind = "queued_busy"
	LoopGuardQueuedNumber   LoopGuardKind = "queued_number"
)

// These patterns are structural and name-independent (spec.md §3
// invariant, §4.4 stage 4): they must never reference the bot's configured
// display name.
var (
	thinkingEN     = regexp.MustCompile(`(?m)^>\s*.+\s+is\s+thinking\.\.\.\s*$`)
	thinkingZH     = regexp.MustCompile(`(?m)^>\s*.+\s+正在思考[.…]*\s*$`)
	answerWrapper  = regexp.MustCompile(`(?mi)^>\s*-{3,}\s*answer\s*-{3,}\s*$`)
	answerEnd      = regexp.MustCompile(`(?mi)^>\s*-{3,}\s*end\s*-{3,}\s*$`)
	queuedBusy     = regexp.MustCompile(`(?i)queued messages while agent was busy`)
	queuedNumber   = regexp.MustCompile(`(?i)^queued\s+#\d+$`)
	attachmentOnly = regexp.MustCompile(`(?i)^(?:>\s*)?<?media:attachment>?\s*$`)
)

// DetectLoopGuardMarker implements spec.md §4.4 stage 4. It returns
// LoopGuardNone when text contains no recognized marker.
func DetectLoopGuardMarker(text string) LoopGuardKind {
	switch {
	case thinkingEN.MatchString(text), thinkingZH.MatchString(text):
		return LoopGuardThinking
	case answerWrapper.MatchString(text), answerEnd.MatchString(text):
		return LoopGuardAnswerWrapper
	case queuedBusy.MatchString(text):
		return LoopGuardQueuedBusy
	case queuedNumber.MatchString(text):
		return LoopGuardQueuedNumber
	default:
		return LoopGuardNone
	}
}

// IsPureAttachmentPlaceholder implements spec.md §4.4 stage 5.
func IsPureAttachmentPlaceholder(text string) bool {
	return attachmentOnly.MatchString(text)
}

var unsafeFilenameChar = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeFilename implements filenameSanitize(chatId) (spec.md §3, §4.8):
// every character outside [A-Za-z0-9_-] — including separators and dots —
// is replaced with '_', which also rules out path traversal.
func SanitizeFilename(chatID string) string {
	return unsafeFilenameChar.ReplaceAllString(chatID, "_")
}
