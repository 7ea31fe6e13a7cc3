package policy

import "testing"

func TestNormalizeTarget(t *testing.T) {
	cases := map[string]string{
		"ringcentral:rc:123": "123",
		"  rc:user:45  ":     "45",
		"chat:99":            "99",
		"   ":                "",
		"group:team:55":      "55",
	}
	for in, want := range cases {
		if got := NormalizeTarget(in); got != want {
			t.Errorf("NormalizeTarget(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseTarget(t *testing.T) {
	kind, id := ParseTarget("chat:123")
	if kind != TargetChat || id != "123" {
		t.Fatalf("got (%s, %s)", kind, id)
	}
	kind, id = ParseTarget("user:abc")
	if kind != TargetUser || id != "abc" {
		t.Fatalf("got (%s, %s)", kind, id)
	}
	kind, _ = ParseTarget("9988")
	if kind != TargetChat {
		t.Fatalf("expected bare numeric to default to chat, got %s", kind)
	}
	kind, _ = ParseTarget("not-a-target")
	if kind != TargetUnknown {
		t.Fatalf("expected unknown, got %s", kind)
	}
}

func TestIsSenderAllowed(t *testing.T) {
	if !IsSenderAllowed("123", []string{"*"}) {
		t.Fatal("wildcard should allow any sender")
	}
	if !IsSenderAllowed("RC:123", []string{"", "user:123"}) {
		t.Fatal("expected prefix-insensitive match")
	}
	if IsSenderAllowed("999", []string{"123"}) {
		t.Fatal("expected no match")
	}
}

func TestDetectLoopGuardMarker(t *testing.T) {
	cases := map[string]LoopGuardKind{
		"> 🦞 Bot is thinking...":                       LoopGuardThinking,
		"> 机器人 正在思考...":                                  LoopGuardThinking,
		"> --------answer--------":                      LoopGuardAnswerWrapper,
		"> ---------end----------":                      LoopGuardAnswerWrapper,
		"there were queued messages while agent was busy": LoopGuardQueuedBusy,
		"queued #3":                                      LoopGuardQueuedNumber,
		"hello world":                                    LoopGuardNone,
	}
	for text, want := range cases {
		if got := DetectLoopGuardMarker(text); got != want {
			t.Errorf("DetectLoopGuardMarker(%q) = %q, want %q", text, got, want)
		}
	}
}

func TestIsPureAttachmentPlaceholder(t *testing.T) {
	if !IsPureAttachmentPlaceholder("<media:attachment>") {
		t.Fatal("expected match")
	}
	if !IsPureAttachmentPlaceholder("> media:attachment") {
		t.Fatal("expected match with quote prefix")
	}
	if IsPureAttachmentPlaceholder("check out this media:attachment here") {
		t.Fatal("should not match embedded text")
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := SanitizeFilename("../../etc/passwd"); got != "______etc_passwd" {
		t.Fatalf("got %q", got)
	}
	if got := SanitizeFilename("abc-123_DEF"); got != "abc-123_DEF" {
		t.Fatalf("expected safe chars untouched, got %q", got)
	}
}
