package pipeline

import (
	"testing"
	"time"
)

func TestCounterPeekWithoutCommitRepeats(t *testing.T) {
	c := NewCounterIdentifiers(5)
	if c.Peek() != 6 || c.Peek() != 6 {
		t.Fatalf("peek should not advance")
	}
	c.Commit(6)
	if c.Peek() != 7 {
		t.Fatalf("Peek after commit = %d, want 7", c.Peek())
	}
}

func TestTimestampIdentifiersSurviveFrozenClock(t *testing.T) {
	frozen := time.UnixMilli(1_700_000_000_000)
	ts := NewTimestampIdentifiers()
	ts.now = func() time.Time { return frozen }

	var last int64
	for i := 0; i < 5; i++ {
		id := ts.Peek()
		if id <= last {
			t.Fatalf("identifier %d not after %d", id, last)
		}
		ts.Commit(id)
		last = id
	}
	if last != frozen.UnixMilli()+4 {
		t.Fatalf("last = %d", last)
	}
}

func TestUnknownPolicy(t *testing.T) {
	if _, err := NewIdentifierPolicy("uuid", 0); err == nil {
		t.Fatalf("expected error")
	}
}
