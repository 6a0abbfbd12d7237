/*
pager.go - Pagination engine

PURPOSE:
  Converts a consumer-reported "last visible index" (a scroll position)
  into fetch-next-batch decisions against the ledger Store, and merges
  results into the View.

TRIGGER ALGORITHM:
  A trigger is skipped when:
    - the end of the collection has been reached, or
    - the most recent fetch reported an empty collection (StatusEmpty), or
    - a fetch is already in flight (dropped, not queued), or
    - lastVisibleIndex is below the trigger threshold (the consumer
      scrolled back over data already loaded).
  Otherwise the record at lastVisibleIndex anchors the cursor (absent
  when paging from the start) and one batch of pageSize records is
  fetched. After a batch is appended the threshold advances by
  pageSize-1 for the first batch and pageSize for subsequent ones - the
  first page has no anchor record, so its last index sits one lower.

END DETECTION:
  A named, swappable policy (EndPolicy). EndOnShortBatch is the default:
  the stores in this repository have exact limit semantics, so a batch
  shorter than requested means the collection is exhausted; a fully
  overlapping batch also ends the session, absorbing racing duplicate
  triggers. EndOnOverlap is the pure containment heuristic for stores
  that may re-deliver stale batches. Either way, a fully overlapping
  batch is never appended.

CONCURRENCY:
  Triggers for one Pager are serialized: a trigger while a fetch is in
  flight is dropped. A cancelled fetch surfaces StatusError and leaves
  records and threshold untouched, so no partial merge is observable.

SEE ALSO:
  - view.go: The state this engine mutates
  - ledger/store.go: FetchBatch contract (ascending, strictly-after cursor)
*/
package history

import (
	"context"
	"sync"

	"github.com/warp/pocket-ledger/ledger"
)

// DefaultPageSize matches the pagination-heavy flow; deployments override
// it via config.
const DefaultPageSize = 3

// EndPolicy decides whether a fetched batch signals the end of the
// collection. overlap is how many of the batch's records were already
// held before the merge.
type EndPolicy func(batchLen, overlap, limit int) bool

// EndOnShortBatch treats a batch shorter than the requested limit as the
// end. Valid for stores with exact limit semantics. A fully overlapping
// batch also counts: it only occurs when a racing trigger re-requested
// data already merged.
func EndOnShortBatch(batchLen, overlap, limit int) bool {
	return batchLen < limit || (batchLen > 0 && overlap == batchLen)
}

// EndOnOverlap is the pure containment heuristic: end only when a
// non-empty batch is entirely already present. For stores that may
// re-deliver stale data, where a short batch proves nothing.
func EndOnOverlap(batchLen, overlap, limit int) bool {
	return batchLen > 0 && overlap == batchLen
}

// Pager drives pagination for one user's browsing session.
type Pager struct {
	store     ledger.Store
	user      ledger.UserID
	pageSize  int
	endPolicy EndPolicy
	view      *View

	mu         sync.Mutex
	inFlight   bool
	threshold  int
	fetchedAny bool
}

// Option configures a Pager.
type Option func(*Pager)

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(p *Pager) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// WithEndPolicy overrides the default end-detection policy.
func WithEndPolicy(ep EndPolicy) Option {
	return func(p *Pager) {
		if ep != nil {
			p.endPolicy = ep
		}
	}
}

func NewPager(store ledger.Store, user ledger.UserID, opts ...Option) *Pager {
	p := &Pager{
		store:     store,
		user:      user,
		pageSize:  DefaultPageSize,
		endPolicy: EndOnShortBatch,
		view:      NewView(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// View returns the observable state this pager feeds.
func (p *Pager) View() *View {
	return p.view
}

// Trigger reports a consumer scroll position and fetches the next batch
// when warranted. Returns the fetch error, or nil when the trigger was
// skipped or the fetch succeeded. Idempotent for repeated identical
// indices: the second call is skipped by the threshold check.
func (p *Pager) Trigger(ctx context.Context, lastVisibleIndex int) error {
	p.mu.Lock()
	if p.inFlight || p.view.EndReached() || p.view.Status() == StatusEmpty || lastVisibleIndex < p.threshold {
		p.mu.Unlock()
		return nil
	}

	var cursor *int64
	if rec, ok := p.view.RecordAt(lastVisibleIndex); ok {
		ts := rec.Timestamp
		cursor = &ts
	} else if n := p.view.Len(); n > 0 {
		// Index beyond the loaded window: anchor on the tail.
		rec, _ := p.view.RecordAt(n - 1)
		ts := rec.Timestamp
		cursor = &ts
	}

	p.inFlight = true
	p.mu.Unlock()
	p.view.setStatus(StatusInProgress)

	batch, err := p.store.FetchBatch(ctx, p.user, cursor, p.pageSize)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false

	if err != nil {
		// Failed or cancelled: records and threshold stay untouched.
		p.view.setStatus(StatusError)
		return err
	}

	if len(batch) == 0 && p.view.Len() == 0 {
		// First page of an empty collection: "nothing to show".
		p.view.setStatus(StatusEmpty)
		if p.endPolicy(0, 0, p.pageSize) {
			p.view.markEnd()
		}
		return nil
	}

	overlap := p.view.contains(batch)
	fullOverlap := len(batch) > 0 && overlap == len(batch)

	if !fullOverlap && len(batch) > 0 {
		p.view.merge(batch)
		if p.fetchedAny {
			p.threshold += p.pageSize
		} else {
			// First batch has no anchor record, so its last index sits
			// one below a full page.
			p.threshold += p.pageSize - 1
			p.fetchedAny = true
		}
	}

	if p.endPolicy(len(batch), overlap, p.pageSize) {
		p.view.markEnd()
	}
	p.view.setStatus(StatusSuccess)
	return nil
}

// Delete removes the record from the store (reversing its balance
// contribution) and, on success, from the view.
func (p *Pager) Delete(ctx context.Context, id ledger.RecordID) error {
	if err := p.store.DeleteRecord(ctx, p.user, id); err != nil {
		return err
	}
	p.view.remove(id)
	return nil
}

// Reset starts a fresh browse session: clears the view, the cursor
// threshold, and the end flag. Called when the consumer stops browsing.
func (p *Pager) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threshold = 0
	p.fetchedAny = false
	p.view.reset()
}
