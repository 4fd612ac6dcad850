package prompt

import (
	"strings"
	"testing"

	"policy-rag/internal/models"
)

func TestBuildPrompt(t *testing.T) {
	t.Parallel()
	p := BuildPrompt("\n* Document Name: BEM, Page Number: 4, Document URL: u\nbody")
	if !strings.HasPrefix(p, models.ContextHeader+"```\n* Document Name: BEM") {
		t.Fatalf("prompt does not start with header and fenced context: %q", p[:80])
	}
	if !strings.Contains(p, "body```\n"+models.ContextFooter) {
		t.Fatalf("context fence not followed by footer")
	}
	if !strings.HasSuffix(p, models.Disclaimer) {
		t.Fatalf("prompt does not end with disclaimer")
	}
	for _, marker := range []string{models.ReasoningMarker, models.ConclusionMarker, models.AdditionalInfoMarker} {
		if !strings.Contains(p, marker) {
			t.Fatalf("prompt missing %q", marker)
		}
	}
}

func TestBuildPromptEmptyContext(t *testing.T) {
	t.Parallel()
	p := BuildPrompt("")
	if !strings.Contains(p, "``````\n") {
		t.Fatalf("empty context should still be fenced: %q", p)
	}
}

func TestBuildMessagesOrder(t *testing.T) {
	t.Parallel()
	history := []models.Message{
		{Role: models.RoleUser, Content: "earlier question"},
		{Role: models.RoleUser, Content: "earlier prompt"},
		{Role: models.RoleAssistant, Content: "earlier reply"},
	}
	pc := models.PromptContext{Body: "ctx"}
	msgs := BuildMessages(history, "Is FAP available?", pc)

	if len(msgs) != 7 {
		t.Fatalf("len = %d, want 7", len(msgs))
	}
	wantRoles := []string{
		models.RoleSystem, models.RoleSystem,
		models.RoleUser, models.RoleUser, models.RoleAssistant,
		models.RoleUser, models.RoleUser,
	}
	for i, m := range msgs {
		if m.Role != wantRoles[i] {
			t.Fatalf("msgs[%d].Role = %s, want %s", i, m.Role, wantRoles[i])
		}
	}
	if msgs[0].Content != models.SystemPrompt || msgs[1].Content != models.TerminologyPrompt {
		t.Fatalf("preamble not in place")
	}
	if msgs[4].Content != "earlier reply" {
		t.Fatalf("history not preserved: %q", msgs[4].Content)
	}
	if msgs[5].Content != "Is FAP available?" {
		t.Fatalf("question = %q", msgs[5].Content)
	}
	if msgs[6].Content != BuildPrompt("ctx") {
		t.Fatalf("prompt message mismatch")
	}
	if len(history) != 3 {
		t.Fatalf("history mutated")
	}
}
