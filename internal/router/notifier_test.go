package router

import (
	"testing"
	"time"
)

func TestNotifier_PublishNoSubscribers(t *testing.T) {
	n := NewNotifier(100)
	// Should not panic and should not block
	n.Publish(Notification{
		Type:      LocationAdded,
		Metric:    "cpu",
		Node:      "node-1",
		Timestamp: time.Now().UnixNano(),
	})
}

func TestNotifier_SubscribeReceivesNotification(t *testing.T) {
	n := NewNotifier(100)
	sub := n.Subscribe("sub-1", nil)
	ch := sub.Ch

	done := make(chan struct{})
	go func() {
		notif := <-ch
		if notif.Metric != "cpu" {
			t.Errorf("expected metric 'cpu', got '%s'", notif.Metric)
		}
		if notif.Type != LocationAdded {
			t.Errorf("expected type LocationAdded, got %v", notif.Type)
		}
		close(done)
	}()

	n.Publish(Notification{
		Type:      LocationAdded,
		Metric:    "cpu",
		Node:      "node-1",
		Timestamp: time.Now().UnixNano(),
	})

	select {
	case <-done:
		// Success
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive notification within timeout")
	}
}

func TestNotifier_FilterExcludesNonMatching(t *testing.T) {
	n := NewNotifier(100)
	// Subscribe with filter for "cpu."
	sub := n.Subscribe("sub-2", []string{"cpu."})
	ch := sub.Ch

	// Publish notification with different metric
	n.Publish(Notification{
		Type:      LocationAdded,
		Metric:    "mem.used",
		Node:      "node-1",
		Timestamp: time.Now().UnixNano(),
	})

	// Should not receive the notification
	select {
	case notif := <-ch:
		t.Fatalf("received unexpected notification: %v", notif)
	case <-time.After(100 * time.Millisecond):
		// Expected - notification filtered out
	}
}

func TestNotifier_FilterIncludesMatching(t *testing.T) {
	n := NewNotifier(100)
	// Subscribe with filter for "cpu."
	sub := n.Subscribe("sub-3", []string{"cpu."})
	ch := sub.Ch

	done := make(chan struct{})
	go func() {
		notif := <-ch
		if notif.Metric != "cpu.load" {
			t.Errorf("expected 'cpu.load', got '%s'", notif.Metric)
		}
		close(done)
	}()

	n.Publish(Notification{
		Type:      LocationAdded,
		Metric:    "cpu.load",
		Node:      "node-1",
		Timestamp: time.Now().UnixNano(),
	})

	select {
	case <-done:
		// Success
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive notification within timeout")
	}
}

func TestNotifier_FullChannelDropsNotification(t *testing.T) {
	n := NewNotifier(1) // Small buffer
	sub := n.Subscribe("sub-4", nil)
	ch := sub.Ch

	// Fill the channel
	ch <- Notification{Type: LocationAdded, Metric: "fill"}

	// This should not block - notification should be dropped
	done := make(chan struct{})
	go func() {
		n.Publish(Notification{
			Type:      LocationAdded,
			Metric:    "cpu",
			Node:      "node-1",
			Timestamp: time.Now().UnixNano(),
		})
		close(done)
	}()

	select {
	case <-done:
		// Success - publish returned without blocking
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publish blocked when channel was full")
	}

	// Original notification should still be there
	select {
	case notif := <-ch:
		if notif.Metric != "fill" {
			t.Errorf("expected 'fill', got '%s'", notif.Metric)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("original notification was lost")
	}
}

func TestNotifier_UnsubscribeClosesChannel(t *testing.T) {
	n := NewNotifier(100)
	sub := n.Subscribe("test-sub", nil)
	ch := sub.Ch

	n.Unsubscribe("test-sub")

	// Channel should be closed
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("channel was not closed within timeout")
	}
}

func TestNotifier_MultipleSubscribers(t *testing.T) {
	n := NewNotifier(100)
	sub1 := n.Subscribe("sub-1", nil)
	ch1 := sub1.Ch
	sub2 := n.Subscribe("sub-2", []string{"cpu."})
	ch2 := sub2.Ch

	// ch1 should receive both notifications (no filter)
	// ch2 should receive only "cpu.load" (has "cpu." filter)

	// Start receivers
	done1 := make(chan struct{})
	go func() {
		count := 0
		for range ch1 {
			count++
			if count == 2 {
				close(done1)
				return
			}
		}
	}()

	done2 := make(chan struct{})
	go func() {
		notif := <-ch2
		if notif.Metric != "cpu.load" {
			t.Errorf("ch2: expected 'cpu.load', got '%s'", notif.Metric)
		}
		close(done2)
	}()

	// Give receivers time to start
	time.Sleep(10 * time.Millisecond)

	// Publish notifications
	n.Publish(Notification{
		Type:      LocationAdded,
		Metric:    "mem.used",
		Node:      "node-1",
		Timestamp: time.Now().UnixNano(),
	})

	n.Publish(Notification{
		Type:      LocationAdded,
		Metric:    "cpu.load",
		Node:      "node-1",
		Timestamp: time.Now().UnixNano(),
	})

	// Wait for ch1 to receive both notifications
	select {
	case <-done1:
		// Success
	case <-time.After(time.Second):
		t.Fatal("ch1 did not receive all notifications")
	}

	// Wait for ch2 to receive "cpu.load"
	select {
	case <-done2:
		// Success
	case <-time.After(time.Second):
		t.Fatal("ch2 did not receive 'cpu.load' notification")
	}
}
