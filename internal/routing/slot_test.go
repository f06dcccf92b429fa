package routing

import (
	"testing"
	"time"
)

func TestSlotTakeEmpty(t *testing.T) {
	var s Slot
	if m := s.Take(); m != nil {
		t.Errorf("empty slot returned %v, want nil", m)
	}
	if s.Pending() {
		t.Error("empty slot should not report pending")
	}
}

func TestSlotCoalescesToNewest(t *testing.T) {
	var s Slot
	first := NewMessage(1, 1)
	first.Set(0, 0, 1, 1)
	second := NewMessage(1, 1)
	second.Set(0, 0, 2, 2)

	s.Publish(first)
	s.Publish(second)

	got := s.Take()
	if got != second {
		t.Errorf("coalesced take returned %+v, want the newest message", got)
	}
	if again := s.Take(); again != nil {
		t.Errorf("second take returned %v, want nil", again)
	}
}

func TestSlotPublishNilIgnored(t *testing.T) {
	var s Slot
	m := NewMessage(1, 1)
	s.Publish(m)
	s.Publish(nil)
	if got := s.Take(); got != m {
		t.Errorf("nil publish should not clobber the pending message, got %v", got)
	}
}

// TestSlotConcurrentPublishTake stresses the producer/consumer pair.
// The race detector is the oracle for memory ordering; the assertions
// check that the consumer only ever observes newer messages and ends on
// the final one.
func TestSlotConcurrentPublishTake(t *testing.T) {
	var s Slot
	const total = 20000

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			m := NewMessage(1, 1)
			m.Set(0, 0, float32(i), 0)
			s.Publish(m)
		}
	}()

	last := float32(-1)
	for {
		if m := s.Take(); m != nil {
			seq, _ := m.At(0, 0)
			if seq <= last {
				t.Fatalf("sequence went backwards: %v after %v", seq, last)
			}
			last = seq
		}
		select {
		case <-done:
			// Drain whatever the producer left behind.
			if m := s.Take(); m != nil {
				seq, _ := m.At(0, 0)
				if seq <= last {
					t.Fatalf("drain went backwards: %v after %v", seq, last)
				}
				last = seq
			}
			if last != total-1 {
				t.Errorf("final observed sequence = %v, want %v", last, total-1)
			}
			return
		default:
		}
	}
}

// TestSlotConsumerNeverWaits verifies the take side is wait-free even
// while a producer publishes continuously.
func TestSlotConsumerNeverWaits(t *testing.T) {
	var s Slot
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				s.Publish(NewMessage(1, 1))
			}
		}
	}()

	start := time.Now()
	const takes = 100000
	for i := 0; i < takes; i++ {
		s.Take()
	}
	elapsed := time.Since(start)
	close(stop)

	// Generous bound: a blocking implementation would overshoot this by
	// orders of magnitude.
	if elapsed > 5*time.Second {
		t.Errorf("%d takes took %v, expected sub-second wait-free behavior", takes, elapsed)
	}
}
