package memory_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/DarioTortorici/cinetech/core"
	"github.com/DarioTortorici/cinetech/memory"
)

func TestAppendAndRead(t *testing.T) {
	conv := memory.NewConversations(memory.Config{MaxTurns: 10, KeepRecent: 4}, nil)

	conv.Append("s1", core.RoleUser, "recommend a thriller", nil)
	conv.Append("s1", core.RoleAgent, "Try Se7en.", nil)

	view := conv.Read("s1")
	if view.Summary != "" {
		t.Errorf("expected no summary before trimming, got %q", view.Summary)
	}
	if len(view.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(view.Turns))
	}
	if view.Turns[0].Role != core.RoleUser || view.Turns[1].Role != core.RoleAgent {
		t.Errorf("turns out of order: %v, %v", view.Turns[0].Role, view.Turns[1].Role)
	}
	if view.Turns[0].ID == "" || view.Turns[0].ID == view.Turns[1].ID {
		t.Errorf("turn ids must be unique and non-empty")
	}
	if view.Turns[1].Timestamp.Before(view.Turns[0].Timestamp) {
		t.Errorf("timestamps must be monotonic")
	}
}

func TestUnknownSessionReadsEmpty(t *testing.T) {
	conv := memory.NewConversations(memory.Config{}, nil)

	view := conv.Read("never-seen")
	if len(view.Turns) != 0 || view.Summary != "" {
		t.Errorf("unknown session must read as empty, got %d turns", len(view.Turns))
	}
}

func TestSessionIsolation(t *testing.T) {
	conv := memory.NewConversations(memory.Config{}, nil)

	conv.Append("alice", core.RoleUser, "I love horror", nil)
	conv.Append("bob", core.RoleUser, "I love musicals", nil)

	if got := conv.Read("alice").Turns; len(got) != 1 || got[0].Content != "I love horror" {
		t.Errorf("alice's log polluted: %+v", got)
	}
	if got := conv.Read("bob").Turns; len(got) != 1 || got[0].Content != "I love musicals" {
		t.Errorf("bob's log polluted: %+v", got)
	}
}

func TestTrimPreservesRecentTurns(t *testing.T) {
	conv := memory.NewConversations(memory.Config{MaxTurns: 6, KeepRecent: 3}, nil)

	for i := 0; i < 10; i++ {
		conv.Append("s1", core.RoleUser, fmt.Sprintf("message %d", i), nil)
	}

	view := conv.Read("s1")
	if len(view.Turns) > 6 {
		t.Fatalf("log exceeded budget: %d turns", len(view.Turns))
	}
	last := view.Turns[len(view.Turns)-1]
	if last.Content != "message 9" {
		t.Errorf("most recent turn lost: %q", last.Content)
	}
	// The three most recent turns survive verbatim.
	for i, want := range []string{"message 7", "message 8", "message 9"} {
		got := view.Turns[len(view.Turns)-3+i].Content
		if got != want {
			t.Errorf("recent turn %d: got %q, want %q", i, got, want)
		}
	}
	if view.Summary == "" {
		t.Error("trimming should produce a summary")
	}
	if !strings.Contains(view.Summary, "message 0") && !strings.Contains(view.Summary, "message 3") {
		t.Errorf("summary should mention folded turns: %q", view.Summary)
	}
	if err := conv.Check("s1"); err != nil {
		t.Errorf("invariant check failed after trim: %v", err)
	}
}

func TestSummaryDropsOldestFirst(t *testing.T) {
	conv := memory.NewConversations(memory.Config{MaxTurns: 4, KeepRecent: 2, SummaryBudget: 120}, nil)

	for i := 0; i < 30; i++ {
		conv.Append("s1", core.RoleUser, fmt.Sprintf("turn number %02d with some padding text", i), nil)
	}

	view := conv.Read("s1")
	if len(view.Summary) > 120 {
		t.Fatalf("summary exceeds budget: %d chars", len(view.Summary))
	}
	if strings.Contains(view.Summary, "turn number 00") {
		t.Errorf("oldest content should be dropped first, summary: %q", view.Summary)
	}
}

func TestAppendExchangeIsAtomic(t *testing.T) {
	conv := memory.NewConversations(memory.Config{MaxTurns: 200, KeepRecent: 10}, nil)

	const workers = 8
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				conv.AppendExchange("s1", []memory.Entry{
					{Role: core.RoleUser, Content: fmt.Sprintf("q-%d-%d", w, i)},
					{Role: core.RoleAgent, Content: fmt.Sprintf("a-%d-%d", w, i)},
				})
			}
		}(w)
	}
	wg.Wait()

	view := conv.Read("s1")
	if len(view.Turns) != workers*10 {
		t.Fatalf("expected %d turns, got %d", workers*10, len(view.Turns))
	}
	// Exchanges never interleave: every user turn is immediately
	// followed by its agent turn.
	for i := 0; i < len(view.Turns); i += 2 {
		u, a := view.Turns[i], view.Turns[i+1]
		if u.Role != core.RoleUser || a.Role != core.RoleAgent {
			t.Fatalf("exchange interleaved at %d: %s then %s", i, u.Role, a.Role)
		}
		if strings.TrimPrefix(u.Content, "q") != strings.TrimPrefix(a.Content, "a") {
			t.Fatalf("mismatched pair at %d: %q / %q", i, u.Content, a.Content)
		}
	}
	if err := conv.Check("s1"); err != nil {
		t.Errorf("invariant check failed: %v", err)
	}
}

func TestConcurrentSessionsDoNotBlock(t *testing.T) {
	conv := memory.NewConversations(memory.Config{MaxTurns: 100, KeepRecent: 10}, nil)

	var wg sync.WaitGroup
	for s := 0; s < 10; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			session := fmt.Sprintf("session-%d", s)
			for i := 0; i < 20; i++ {
				conv.Append(session, core.RoleUser, fmt.Sprintf("m%d", i), nil)
			}
		}(s)
	}
	wg.Wait()

	for s := 0; s < 10; s++ {
		session := fmt.Sprintf("session-%d", s)
		if got := len(conv.Read(session).Turns); got != 20 {
			t.Errorf("%s: expected 20 turns, got %d", session, got)
		}
	}
}

func TestReset(t *testing.T) {
	conv := memory.NewConversations(memory.Config{}, nil)

	conv.Append("s1", core.RoleUser, "hello", nil)
	conv.Reset("s1")

	if got := len(conv.Read("s1").Turns); got != 0 {
		t.Errorf("reset session should be empty, got %d turns", got)
	}
}
