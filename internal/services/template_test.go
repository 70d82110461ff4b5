package services

import "testing"

func TestRenderTemplate_Substitution(t *testing.T) {
	data := map[string]string{
		"account_name":   "Acme Corp",
		"days_remaining": "12",
	}
	got := RenderTemplate("Renewal for {{account_name}} in {{days_remaining}} days", data)
	want := "Renewal for Acme Corp in 12 days"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderTemplate_UnknownVariableRendersEmpty(t *testing.T) {
	got := RenderTemplate("Hello {{nonexistent}}!", map[string]string{"name": "x"})
	if got != "Hello !" {
		t.Fatalf("got %q, want %q", got, "Hello !")
	}
}

func TestRenderTemplate_UnclosedBracesEmittedLiterally(t *testing.T) {
	got := RenderTemplate("Hello {{name", map[string]string{"name": "x"})
	if got != "Hello {{name" {
		t.Fatalf("got %q, want %q", got, "Hello {{name")
	}
}

func TestRenderTemplate_RepeatedAndAdjacentVariables(t *testing.T) {
	data := map[string]string{"a": "1", "b": "2"}
	got := RenderTemplate("{{a}}{{b}}{{a}}", data)
	if got != "121" {
		t.Fatalf("got %q, want %q", got, "121")
	}
}

func TestRenderTemplate_EmptyTemplate(t *testing.T) {
	if got := RenderTemplate("", map[string]string{"a": "1"}); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestRenderTemplate_NoVariables(t *testing.T) {
	if got := RenderTemplate("plain text", nil); got != "plain text" {
		t.Fatalf("got %q, want %q", got, "plain text")
	}
}
