package handler

import (
	"sync"
)

// base holds the state shared by every handler variant.
type base struct {
	info Info

	mu   sync.Mutex
	used bool
}

func newBase(info Info) base {
	info.ID = nextID.Add(1)
	return base{info: info}
}

func (b *base) Info() Info { return b.info }

func (b *base) Kind() Kind { return b.info.Kind }

func (b *base) Used() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

func (b *base) Restore() {
	b.setUsed(false)
}

func (b *base) setUsed(v bool) {
	b.mu.Lock()
	b.used = v
	b.mu.Unlock()
}

// exhausted reports whether a once handler has already executed.
func (b *base) exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info.Once && b.used
}

// claim marks the handler used. It fails when a concurrent run claimed a
// once handler after this run's first exhaustion check.
func (b *base) claim() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.info.Once && b.used {
		return false
	}
	b.used = true
	return true
}
