package pipeline

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/askiada/forgiving-data/pkg/table"
)

// Future is the eventual output of a step or pipeline. It is settled exactly once.
type Future struct {
	once  sync.Once
	done  chan struct{}
	value *table.Provenanced
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) settle(value *table.Provenanced, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future is settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future is settled or ctx is done. A settled future always wins over a done context.
func (f *Future) Wait(ctx context.Context) (*table.Provenanced, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		select {
		case <-f.done:
			return f.value, f.err
		default:
		}

		return nil, errors.Wrap(ctx.Err(), "stopped waiting")
	}
}
