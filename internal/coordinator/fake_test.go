package coordinator

import (
	"context"
	"sync"

	"github.com/aogier/nsdb/internal/query/parser"
	"github.com/aogier/nsdb/pkg/types"
)

// fakeNamespaceActor is a single-node, single-metric in-memory stand-in
// for internal/namespace.Actor, used so the coordinator tests don't
// need a WAL or object storage.
type fakeNamespaceActor struct {
	mu        sync.Mutex
	bits      map[string][]types.Bit // metric -> bits
	failAdd   bool
	dropped   map[string]bool
}

func newFakeNamespaceActor() *fakeNamespaceActor {
	return &fakeNamespaceActor{
		bits:    make(map[string][]types.Bit),
		dropped: make(map[string]bool),
	}
}

func (f *fakeNamespaceActor) AddRecord(ctx context.Context, metric string, bit types.Bit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd {
		return errTestFailure
	}
	f.bits[metric] = append(f.bits[metric], bit)
	return nil
}

func (f *fakeNamespaceActor) DeleteRecord(ctx context.Context, metric string, where parser.Expression) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.bits[metric][:0]
	removed := 0
	for _, b := range f.bits[metric] {
		if where == nil {
			removed++
			continue
		}
		kept = append(kept, b)
	}
	f.bits[metric] = kept
	return removed, nil
}

func (f *fakeNamespaceActor) DropMetric(ctx context.Context, metric string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped[metric] = true
	delete(f.bits, metric)
	return nil
}

func (f *fakeNamespaceActor) DeleteNamespace(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for metric := range f.bits {
		f.dropped[metric] = true
	}
	f.bits = make(map[string][]types.Bit)
	return nil
}

func (f *fakeNamespaceActor) ExecuteSelectStatement(ctx context.Context, metric string, where parser.Expression) ([]types.Bit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Bit, len(f.bits[metric]))
	copy(out, f.bits[metric])
	return out, nil
}

func (f *fakeNamespaceActor) GetCount(ctx context.Context, metric string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bits[metric]), nil
}

type testFailure struct{}

func (testFailure) Error() string { return "injected namespace failure" }

var errTestFailure = testFailure{}
