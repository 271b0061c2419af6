package idgen

import "testing"

func TestGenerator_Increasing(t *testing.T) {
	g, err := New(1)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	prev := g.NextTicketID()
	for i := 0; i < 1000; i++ {
		id := g.NextTicketID()
		if id <= prev {
			t.Fatalf("id %d not greater than %d", id, prev)
		}
		prev = id
	}
}

func TestNew_RejectsBadNode(t *testing.T) {
	if _, err := New(5000); err == nil {
		t.Error("New(5000) should fail: node ids are 10 bits")
	}
}
