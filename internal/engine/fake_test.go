package engine

import (
	"context"
	"sync"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/store/memory"
)

// fakeGateway wraps the memory store with call counters, injectable errors
// and per-call blocking, so tests can hold operations in flight.
type fakeGateway struct {
	*memory.Store

	mu          sync.Mutex
	fetchCalls  int
	insertCalls int
	deleteCalls int
	fetchErr    error
	deleteErr   error
	fetchBlock  map[int]chan struct{} // keyed by 1-based call number
	insertBlock chan struct{}
	deleteBlock chan struct{}
	onDelete    func()
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		Store:      memory.NewStore(),
		fetchBlock: make(map[int]chan struct{}),
	}
}

func (f *fakeGateway) FetchAll(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	// Read first so a blocked call returns data as of when it was issued.
	records, err := f.Store.FetchAll(ctx, owner)

	f.mu.Lock()
	f.fetchCalls++
	block := f.fetchBlock[f.fetchCalls]
	injected := f.fetchErr
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if injected != nil {
		return nil, injected
	}
	return records, err
}

func (f *fakeGateway) Insert(ctx context.Context, owner, title, url string) (domain.Bookmark, error) {
	f.mu.Lock()
	f.insertCalls++
	block := f.insertBlock
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return f.Store.Insert(ctx, owner, title, url)
}

func (f *fakeGateway) Delete(ctx context.Context, id, owner string) error {
	f.mu.Lock()
	f.deleteCalls++
	block := f.deleteBlock
	injected := f.deleteErr
	hook := f.onDelete
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if block != nil {
		<-block
	}
	if injected != nil {
		return injected
	}
	return f.Store.Delete(ctx, id, owner)
}

func (f *fakeGateway) counts() (fetch, insert, del int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls, f.insertCalls, f.deleteCalls
}

func (f *fakeGateway) set(fn func(f *fakeGateway)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}
