/*
view.go - Observable history view state

PURPOSE:
  Owns the accumulated, deduplicated record list a consumer renders,
  plus the fetch status and the end-of-collection flag. The Pager
  (pager.go) mutates it; the consumer reads snapshots and listens on
  Updates for change notifications.

INVARIANTS:
  - No two records share an ID (dedup by ID on merge)
  - Records are always sorted ascending by Timestamp
  - A cancelled or failed fetch never partially mutates the list

CONCURRENCY:
  One logical consumer per View. All methods are mutex-guarded so the
  consumer goroutine and the Pager's fetch goroutine may interleave, but
  the View does no fan-out of its own.

SEE ALSO:
  - pager.go: Decides when batches are fetched and merged
*/
package history

import (
	"sort"
	"sync"

	"github.com/warp/pocket-ledger/ledger"
)

// View is the observable state object for one browsing session.
type View struct {
	mu         sync.Mutex
	records    []ledger.Record
	ids        map[ledger.RecordID]struct{}
	status     FetchStatus
	endReached bool
	updates    chan struct{}
}

func NewView() *View {
	return &View{
		ids:     make(map[ledger.RecordID]struct{}),
		status:  StatusIdle,
		updates: make(chan struct{}, 1),
	}
}

// Snapshot returns a copy of the records plus the current status and end
// flag, consistent with each other.
func (v *View) Snapshot() ([]ledger.Record, FetchStatus, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	recs := make([]ledger.Record, len(v.records))
	copy(recs, v.records)
	return recs, v.status, v.endReached
}

// Updates delivers a coalesced notification after every state change.
func (v *View) Updates() <-chan struct{} {
	return v.updates
}

func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.records)
}

func (v *View) Status() FetchStatus {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

func (v *View) EndReached() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.endReached
}

// RecordAt returns the record at index i, ok == false when out of range.
func (v *View) RecordAt(i int) (ledger.Record, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if i < 0 || i >= len(v.records) {
		return ledger.Record{}, false
	}
	return v.records[i], true
}

// contains reports how many of batch's records are already held.
func (v *View) contains(batch []ledger.Record) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := 0
	for _, r := range batch {
		if _, ok := v.ids[r.ID]; ok {
			n++
		}
	}
	return n
}

// merge inserts the batch's unseen records in Timestamp order and returns
// how many were added.
func (v *View) merge(batch []ledger.Record) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	added := 0
	for _, rec := range batch {
		if _, ok := v.ids[rec.ID]; ok {
			continue
		}
		i := sort.Search(len(v.records), func(i int) bool {
			return v.records[i].Timestamp > rec.Timestamp
		})
		v.records = append(v.records, ledger.Record{})
		copy(v.records[i+1:], v.records[i:])
		v.records[i] = rec
		v.ids[rec.ID] = struct{}{}
		added++
	}
	if added > 0 {
		v.notifyLocked()
	}
	return added
}

// remove drops the record with the given ID. When the view empties out it
// transitions to StatusEmpty so the consumer shows "nothing here".
func (v *View) remove(id ledger.RecordID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.ids[id]; !ok {
		return false
	}
	for i, r := range v.records {
		if r.ID == id {
			v.records = append(v.records[:i], v.records[i+1:]...)
			break
		}
	}
	delete(v.ids, id)
	if len(v.records) == 0 {
		v.status = StatusEmpty
	}
	v.notifyLocked()
	return true
}

func (v *View) setStatus(s FetchStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.status == s {
		return
	}
	v.status = s
	v.notifyLocked()
}

func (v *View) markEnd() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.endReached {
		return
	}
	v.endReached = true
	v.notifyLocked()
}

// reset returns the view to its initial state for a fresh browse session.
func (v *View) reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.records = nil
	v.ids = make(map[ledger.RecordID]struct{})
	v.status = StatusIdle
	v.endReached = false
	v.notifyLocked()
}

func (v *View) notifyLocked() {
	select {
	case v.updates <- struct{}{}:
	default:
	}
}
