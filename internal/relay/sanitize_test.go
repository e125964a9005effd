package relay

import (
	"errors"
	"strings"
	"testing"

	"github.com/radiosilence/anthropic-play/internal/llm"
)

func user(content string) llm.Message {
	return llm.Message{Role: llm.RoleUser, Content: content}
}

func assistant(content string) llm.Message {
	return llm.Message{Role: llm.RoleAssistant, Content: content}
}

func TestValidateSchemaRejectsUnknownRole(t *testing.T) {
	err := ValidateSchema([]llm.Message{{Role: "system", Content: "be nice"}})
	if err == nil {
		t.Fatal("expected schema error for system role")
	}
	err = ValidateSchema([]llm.Message{{Role: "wizard", Content: "abracadabra"}})
	if err == nil {
		t.Fatal("expected schema error for unknown role")
	}
}

func TestValidateSchemaRejectsEmptyContent(t *testing.T) {
	err := ValidateSchema([]llm.Message{user("hi"), {Role: llm.RoleAssistant, Content: ""}})
	if err == nil {
		t.Fatal("expected schema error for empty content")
	}
}

func TestSanitizeDropsBlankMessages(t *testing.T) {
	got := Sanitize([]llm.Message{user("hello"), assistant("   "), assistant("\n\t"), user("again")})
	want := []llm.Message{user("hello"), user("again")}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSanitizeCollapsesRunsKeepingLast(t *testing.T) {
	got := Sanitize([]llm.Message{user("a"), user("b"), assistant("x"), assistant("y"), user("c")})
	want := []llm.Message{user("b"), assistant("y"), user("c")}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	input := []llm.Message{user(" "), user("a"), user("b"), assistant("x"), user("c")}
	once := Sanitize(input)
	twice := Sanitize(once)
	if len(once) != len(twice) {
		t.Fatalf("second pass changed length: %v vs %v", once, twice)
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("second pass changed message %d: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestValidateConversationEmpty(t *testing.T) {
	if err := ValidateConversation(nil); !errors.Is(err, ErrEmptyConversation) {
		t.Fatalf("got %v, want ErrEmptyConversation", err)
	}
}

func TestValidateConversationLastMustBeUser(t *testing.T) {
	err := ValidateConversation([]llm.Message{user("hi"), assistant("hello")})
	if !errors.Is(err, ErrLastMessageNotUser) {
		t.Fatalf("got %v, want ErrLastMessageNotUser", err)
	}
}

func TestValidateConversationMessageLength(t *testing.T) {
	atLimit := []llm.Message{user(strings.Repeat("a", MaxMessageLength))}
	if err := ValidateConversation(atLimit); err != nil {
		t.Fatalf("message at limit rejected: %v", err)
	}

	over := []llm.Message{user(strings.Repeat("a", MaxMessageLength+1))}
	err := ValidateConversation(over)
	if err == nil {
		t.Fatal("expected rejection over the per-message limit")
	}
	if !strings.Contains(err.Error(), "Message 0 exceeds") {
		t.Errorf("unexpected error text: %v", err)
	}
}

func TestValidateConversationCount(t *testing.T) {
	build := func(n int) []llm.Message {
		msgs := make([]llm.Message, 0, n)
		for i := 0; i < n; i++ {
			if (n-1-i)%2 == 0 {
				msgs = append(msgs, user("m"))
			} else {
				msgs = append(msgs, assistant("m"))
			}
		}
		return msgs
	}

	if err := ValidateConversation(build(MaxConversationLength)); err != nil {
		t.Fatalf("conversation at limit rejected: %v", err)
	}
	if err := ValidateConversation(build(MaxConversationLength + 2)); !errors.Is(err, ErrConversationTooLong) {
		t.Fatalf("got %v, want ErrConversationTooLong", err)
	}
}
