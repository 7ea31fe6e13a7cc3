// Package grouplog appends inbound group messages to a per-day,
// per-chat markdown file (spec.md §4.8). Built on the standard library
// (os/path/filepath) directly from the spec's invariants: the teacher has
// no file-append helper to adapt (see DESIGN.md, C8).
package grouplog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/openclaw/ringcentral-bridge/internal/policy"
)

var shanghai = mustLoadLocation("Asia/Shanghai")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}

// Log appends entries under {workspace}/memory/chats/YYYY-MM-DD/{safe}.md.
// A single mutex serializes writes; the log is low-volume by construction
// (one append per admitted group message).
type Log struct {
	mu        sync.Mutex
	workspace string
}

// New returns a Log rooted at workspace (the account's configured
// workspace directory).
func New(workspace string) *Log {
	return &Log{workspace: workspace}
}

// Append writes one entry for chatID, creating the day's file (with a
// header) on first write. now is passed in rather than read internally so
// callers (and tests) control the timestamp.
func (l *Log) Append(chatID, chatName, senderID, messageText string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	local := now.In(shanghai)
	dayDir := filepath.Join(l.workspace, "memory", "chats", local.Format("2006-01-02"))
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		return fmt.Errorf("create group log directory: %w", err)
	}

	safeID := policy.SanitizeFilename(chatID)
	path := filepath.Join(dayDir, safeID+".md")

	isNew := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		isNew = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open group log file: %w", err)
	}
	defer f.Close()

	if isNew {
		title := chatName
		if title == "" {
			title = fmt.Sprintf("chat:%s", chatID)
		}
		if _, err := fmt.Fprintf(f, "# %s (%s)\n\n", title, chatID); err != nil {
			return fmt.Errorf("write group log header: %w", err)
		}
	}

	entry := fmt.Sprintf("## %s - %s\n%s\n\n---\n\n", local.Format("15:04"), senderID, messageText)
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("write group log entry: %w", err)
	}
	return nil
}
