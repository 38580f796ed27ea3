package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestRetryPolicySucceedsAfterTransientFailures(t *testing.T) {
	policy := retryPolicy{maxAttempts: 3, baseDelay: time.Millisecond}

	attempts := 0
	err := policy.do(context.Background(), "test", func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryPolicyExhaustionReturnsLastError(t *testing.T) {
	policy := retryPolicy{maxAttempts: 3, baseDelay: time.Millisecond}

	attempts := 0
	wantErr := errors.New("still broken")
	err := policy.do(context.Background(), "test", func() error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("do returned %v, want %v", err, wantErr)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryPolicyNotRetryableAbortsImmediately(t *testing.T) {
	policy := retryPolicy{maxAttempts: 5, baseDelay: time.Millisecond}

	attempts := 0
	err := policy.do(context.Background(), "test", func() error {
		attempts++
		return fmt.Errorf("%w: dimension mismatch", ErrNotRetryable)
	})
	if !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("do returned %v, want ErrNotRetryable", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryPolicyRespectsContextCancellation(t *testing.T) {
	policy := retryPolicy{maxAttempts: 10, baseDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.do(ctx, "test", func() error {
		attempts++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("do returned %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestBuildPromptSectionOrder(t *testing.T) {
	prompt := buildPrompt("What is embodied intelligence?",
		[]string{"chunk one", "chunk two"},
		"highlighted passage")

	selected := strings.Index(prompt, "[SELECTED TEXT]")
	ctx1 := strings.Index(prompt, "[Context 1]")
	ctx2 := strings.Index(prompt, "[Context 2]")
	question := strings.Index(prompt, "Question: What is embodied intelligence?")

	for name, idx := range map[string]int{
		"selected text": selected,
		"context 1":     ctx1,
		"context 2":     ctx2,
		"question":      question,
	} {
		if idx < 0 {
			t.Fatalf("prompt missing %s section:\n%s", name, prompt)
		}
	}
	if !(selected < ctx1 && ctx1 < ctx2 && ctx2 < question) {
		t.Errorf("prompt sections out of order: selected=%d ctx1=%d ctx2=%d question=%d",
			selected, ctx1, ctx2, question)
	}
}

func TestBuildPromptEmptyContextStillAsksForAnswer(t *testing.T) {
	prompt := buildPrompt("What is a transformer?", nil, "")

	if !strings.Contains(prompt, "general knowledge") {
		t.Errorf("empty-context prompt should fall back to general knowledge:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Question: What is a transformer?") {
		t.Errorf("prompt missing question:\n%s", prompt)
	}
	if strings.Contains(prompt, "[Context") {
		t.Errorf("empty-context prompt should not contain context sections:\n%s", prompt)
	}
}
