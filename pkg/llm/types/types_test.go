package types

import "testing"

func TestTextHelper(t *testing.T) {
	m := Text(RoleUser, "hello")
	if m.Role != RoleUser {
		t.Fatalf("role = %q", m.Role)
	}
	if len(m.Parts) != 1 || m.Parts[0].Type != PartText || m.Parts[0].Text != "hello" {
		t.Fatalf("parts = %+v", m.Parts)
	}
}

func TestPlainTextJoinsTextParts(t *testing.T) {
	m := Message{Role: RoleAssistant, Parts: []Part{
		{Type: PartText, Text: "first"},
		{Type: PartToolUse, ID: "call-1", Name: "echo"},
		{Type: PartText, Text: "second"},
	}}

	if got := m.PlainText(); got != "first\nsecond" {
		t.Fatalf("plain text = %q", got)
	}
}

func TestPlainTextEmpty(t *testing.T) {
	if got := (Message{}).PlainText(); got != "" {
		t.Fatalf("plain text = %q", got)
	}
}
