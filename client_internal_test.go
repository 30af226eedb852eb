package coap

import (
	"math/rand"
	"testing"
)

func newTestRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

func TestIDSourceWrap(t *testing.T) {
	s := newIDSource(newTestRand(), 10)
	seen := make(map[uint16]bool)
	for i := 0; i < 20; i++ {
		id := s.MessageID()
		if id >= 10 {
			t.Fatalf("case%d: unicast id %d out of range", i, id)
		}
		seen[id] = true
	}
	if got, want := len(seen), 10; got != want {
		t.Errorf("distinct ids: %d != %d", got, want)
	}

	s = newIDSource(newTestRand(), 65534)
	for i := 0; i < 5; i++ {
		if id := s.MulticastID(); id < 65534 {
			t.Errorf("case%d: multicast id %d out of range", i, id)
		}
	}
}
