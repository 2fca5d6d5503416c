package session

import "testing"

func TestStandaloneBELIgnored(t *testing.T) {
	got := detectOSCNotifications([]byte("some output\x07more output"))
	if len(got) != 0 {
		t.Errorf("len = %d, want 0 (standalone BEL should be ignored)", len(got))
	}
}

func TestDetectOSC9WithBELTerminator(t *testing.T) {
	got := detectOSCNotifications([]byte("\x1b]9;Test notification\x07"))
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].message != "Test notification" {
		t.Errorf("message = %q, want 'Test notification'", got[0].message)
	}
}

func TestDetectOSC9WithSTTerminator(t *testing.T) {
	got := detectOSCNotifications([]byte("\x1b]9;Agent notification\x1b\\"))
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].message != "Agent notification" {
		t.Errorf("message = %q, want 'Agent notification'", got[0].message)
	}
}

func TestDetectOSC777Notification(t *testing.T) {
	got := detectOSCNotifications([]byte("\x1b]777;notify;Build Complete;All tests passed\x07"))
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].title != "Build Complete" {
		t.Errorf("title = %q, want 'Build Complete'", got[0].title)
	}
	if got[0].body != "All tests passed" {
		t.Errorf("body = %q, want 'All tests passed'", got[0].body)
	}
}

func TestOSC9FiltersEscapeSequenceMessages(t *testing.T) {
	got := detectOSCNotifications([]byte("\x1b]9;4;0;\x07"))
	if len(got) != 0 {
		t.Errorf("len = %d, want 0 (should filter escape-sequence-like messages)", len(got))
	}

	got = detectOSCNotifications([]byte("\x1b]9;Real notification message\x07"))
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].message != "Real notification message" {
		t.Errorf("message = %q, want 'Real notification message'", got[0].message)
	}
}

func TestMultipleNotifications(t *testing.T) {
	got := detectOSCNotifications([]byte("\x07\x1b]9;first\x07\x07\x1b]9;second\x1b\\"))
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestNoNotificationsInRegularOutput(t *testing.T) {
	got := detectOSCNotifications([]byte("Building project...\nCompilation complete."))
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestOSC777TitleOnly(t *testing.T) {
	got := detectOSCNotifications([]byte("\x1b]777;notify;Title Only\x07"))
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].title != "Title Only" {
		t.Errorf("title = %q, want 'Title Only'", got[0].title)
	}
	if got[0].body != "" {
		t.Errorf("body = %q, want empty", got[0].body)
	}
}

func TestOSC777EmptyFiltered(t *testing.T) {
	got := detectOSCNotifications([]byte("\x1b]777;notify;\x07"))
	if len(got) != 0 {
		t.Errorf("len = %d, want 0 (empty notification should be filtered)", len(got))
	}
}

func TestMixedContent(t *testing.T) {
	data := []byte("Starting build...\x1b]9;Build started\x07\nCompiling...\x1b]777;notify;Done;Success\x07End")
	got := detectOSCNotifications(data)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].message != "Build started" {
		t.Errorf("got[0].message = %q, want 'Build started'", got[0].message)
	}
	if got[1].title != "Done" || got[1].body != "Success" {
		t.Errorf("got[1] = %+v, want title=Done body=Success", got[1])
	}
}

func TestUnterminatedOSCDoesNotPanic(t *testing.T) {
	// An introducer with no terminator anywhere in the rest of the buffer
	// must end the scan cleanly rather than index out of range.
	got := detectOSCNotifications([]byte("plain text\x1b]9;never closes"))
	if len(got) != 0 {
		t.Errorf("len = %d, want 0 (no terminator present)", len(got))
	}
}

func TestIsEscapeSequence(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"4;0;", true},
		{"123", true},
		{";", true},
		{"", false},
		{"hello", false},
		{"4;0;hello", false},
		{"Real message", false},
	}

	for _, tt := range tests {
		if got := isEscapeSequence(tt.input); got != tt.want {
			t.Errorf("isEscapeSequence(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLooksLikePrompt(t *testing.T) {
	tests := []struct {
		chunk []byte
		want  bool
	}{
		{[]byte("user@host:~$ "), true},
		{[]byte("root@host:~# "), true},
		{[]byte(">>> "), true},
		{[]byte("regular output\n"), false},
	}

	for _, tt := range tests {
		if got := looksLikePrompt(tt.chunk); got != tt.want {
			t.Errorf("looksLikePrompt(%q) = %v, want %v", tt.chunk, got, tt.want)
		}
	}
}
