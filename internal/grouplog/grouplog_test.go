package grouplog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAppendCreatesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	log := New(dir)

	now := time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC)
	if err := log.Append("12345", "Team Alpha", "bob", "hello", now); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Append("12345", "Team Alpha", "alice", "hi back", now.Add(time.Minute)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	path := filepath.Join(dir, "memory", "chats", "2026-03-05", "12345.md")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)

	if strings.Count(content, "# Team Alpha (12345)") != 1 {
		t.Errorf("expected exactly one header, got content: %s", content)
	}
	if !strings.Contains(content, "## 17:30 - bob") {
		// 09:30 UTC -> 17:30 Asia/Shanghai
		t.Errorf("expected Shanghai-local timestamp entry for bob, got: %s", content)
	}
	if !strings.Contains(content, "alice") {
		t.Errorf("expected second entry for alice, got: %s", content)
	}
}

func TestAppendSanitizesChatID(t *testing.T) {
	dir := t.TempDir()
	log := New(dir)
	now := time.Now()

	if err := log.Append("../../etc/passwd", "", "eve", "x", now); err != nil {
		t.Fatalf("Append: %v", err)
	}

	dayDir := filepath.Join(dir, "memory", "chats", now.In(shanghai).Format("2006-01-02"))
	entries, err := os.ReadDir(dayDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), "..") || strings.Contains(e.Name(), "/") {
			t.Errorf("unsafe filename escaped sanitization: %s", e.Name())
		}
	}
}
