package buf

import stdsync "sync"

// CountingObserver records the pages it was notified about.
type CountingObserver struct {
	mu    stdsync.Mutex
	pages []PageID
}

// Notify records a flushed page.
func (o *CountingObserver) Notify(id PageID) {
	o.mu.Lock()
	o.pages = append(o.pages, id)
	o.mu.Unlock()
}

// Flushed returns the pages notified so far.
func (o *CountingObserver) Flushed() []PageID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]PageID(nil), o.pages...)
}
