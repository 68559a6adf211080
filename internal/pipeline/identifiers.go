package pipeline

import (
	"fmt"
	"time"
)

// IdentifierPolicy hands out strictly increasing identifiers. Peek returns
// the next candidate; Commit marks it used. A peeked identifier that is
// never committed is handed out again.
type IdentifierPolicy interface {
	Peek() int64
	Commit(id int64)
}

const (
	PolicyCounter   = "counter"
	PolicyTimestamp = "timestamp"
)

func NewIdentifierPolicy(name string, start int64) (IdentifierPolicy, error) {
	switch name {
	case "", PolicyCounter:
		return NewCounterIdentifiers(start), nil
	case PolicyTimestamp:
		return NewTimestampIdentifiers(), nil
	default:
		return nil, fmt.Errorf("unknown identifier policy %q", name)
	}
}

// CounterIdentifiers yields start+1, start+2, ... The replay reader depends
// on this dense sequence.
type CounterIdentifiers struct {
	last int64
}

func NewCounterIdentifiers(start int64) *CounterIdentifiers {
	return &CounterIdentifiers{last: start}
}

func (c *CounterIdentifiers) Peek() int64 {
	return c.last + 1
}

func (c *CounterIdentifiers) Commit(id int64) {
	if id > c.last {
		c.last = id
	}
}

// TimestampIdentifiers yields wall-clock milliseconds, bumped by one when
// the clock has not moved past the previous identifier.
type TimestampIdentifiers struct {
	last int64
	now  func() time.Time
}

func NewTimestampIdentifiers() *TimestampIdentifiers {
	return &TimestampIdentifiers{now: time.Now}
}

func (t *TimestampIdentifiers) Peek() int64 {
	ms := t.now().UnixMilli()
	if ms <= t.last {
		return t.last + 1
	}
	return ms
}

func (t *TimestampIdentifiers) Commit(id int64) {
	if id > t.last {
		t.last = id
	}
}
