/*
clock.go - Unique, strictly increasing record timestamps

PURPOSE:
  Record.Timestamp is the sole pagination key, so two records for the
  same user must never share a value. Wall clocks tick in milliseconds
  and two appends can land in the same millisecond; TimestampSource
  disambiguates by bumping past the last issued value.

SEE ALSO:
  - types.go: The Timestamp invariant on Record
*/
package ledger

import (
	"sync"
	"time"
)

// TimestampSource issues strictly increasing epoch-millisecond values.
// Safe for concurrent use. One source per user session is enough; sharing
// one across users is also fine, just stricter than required.
type TimestampSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewTimestampSource() *TimestampSource {
	return &TimestampSource{now: time.Now}
}

// NewTimestampSourceAt is for tests: now supplies the wall clock.
func NewTimestampSourceAt(now func() time.Time) *TimestampSource {
	return &TimestampSource{now: now}
}

// Next returns the current epoch milliseconds, bumped by one when the
// wall clock has not advanced past the previously issued value.
func (s *TimestampSource) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UnixMilli()
	if ts <= s.last {
		ts = s.last + 1
	}
	s.last = ts
	return ts
}
