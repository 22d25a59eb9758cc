package channel

import "github.com/morezero/frame-channel/pkg/future"

// pendingTable maps outstanding request ids to their futures.
// Guarded by the owning Channel's mutex.
type pendingTable struct {
	entries map[uint64]*future.Future
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[uint64]*future.Future)}
}

func (p *pendingTable) add(id uint64, f *future.Future) {
	p.entries[id] = f
}

// take evicts and returns the entry for id.
func (p *pendingTable) take(id uint64) (*future.Future, bool) {
	f, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	return f, ok
}

func (p *pendingTable) len() int {
	return len(p.entries)
}
