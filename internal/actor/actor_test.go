package actor

import (
	"context"
	"testing"
	"time"

	"github.com/aogier/nsdb/internal/errors"
)

func TestAskReturnsResult(t *testing.T) {
	m := NewMailbox(4)
	m.Start(context.Background())
	defer m.Stop()

	got, err := Ask(context.Background(), m, "echo", func() (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestAskPropagatesError(t *testing.T) {
	m := NewMailbox(4)
	m.Start(context.Background())
	defer m.Stop()

	wantErr := errors.NewMissingSchema("cpu")
	_, err := Ask(context.Background(), m, "get-schema", func() (int, error) {
		return 0, wantErr
	})
	if err != wantErr {
		t.Errorf("expected error to pass through unchanged, got %v", err)
	}
}

func TestAskTimesOutWhenMailboxNotStarted(t *testing.T) {
	m := NewMailbox(0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Ask(ctx, m, "never-runs", func() (int, error) {
		return 0, nil
	})
	if errors.GetCode(err) != errors.CodeTimedOut {
		t.Errorf("expected a timed-out error, got %v", err)
	}
}

func TestMailboxProcessesInOrder(t *testing.T) {
	m := NewMailbox(8)
	m.Start(context.Background())
	defer m.Stop()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		m.Tell(func() {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
		})
	}
	<-done

	for i, v := range order {
		if v != i {
			t.Fatalf("expected in-order processing, got %v", order)
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	m := NewMailbox(1)
	m.Start(context.Background())
	m.Stop()
	m.Stop() // must not block or panic
}
