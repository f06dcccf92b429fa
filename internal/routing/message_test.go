package routing

import "testing"

func TestMessageLayoutIsInputMajor(t *testing.T) {
	m := NewMessage(2, 3)
	if len(m.Delays) != 6 || len(m.Gains) != 6 {
		t.Fatalf("table lengths = %d/%d, want 6/6", len(m.Delays), len(m.Gains))
	}
	// All outputs for input 0 come before any entry of input 1.
	for i := 0; i < 2; i++ {
		for o := 0; o < 3; o++ {
			if got, want := m.Index(i, o), i*3+o; got != want {
				t.Errorf("Index(%d,%d) = %d, want %d", i, o, got, want)
			}
		}
	}
}

func TestMessageSetAt(t *testing.T) {
	m := NewMessage(2, 2)
	m.Set(1, 0, 48, -0.25)
	d, g := m.At(1, 0)
	if d != 48 || g != -0.25 {
		t.Errorf("At(1,0) = (%v,%v), want (48,-0.25)", d, g)
	}
	if m.Delays[2] != 48 {
		t.Errorf("Set(1,0) landed at %v, want flat index 2", m.Delays)
	}
}
