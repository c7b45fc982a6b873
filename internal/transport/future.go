package transport

import pkgraft "github.com/cliyu/ferrous-raft/pkg/raft"

// future is the generic pkgraft.Future[T] implementation every IOProvider
// method in this package returns. The work runs on its own goroutine so a
// slow disk write or network round trip never blocks the driver loop;
// Poll only ever checks whether the result is in yet.
type future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// runFuture starts fn on a new goroutine and returns a future that
// resolves once fn returns.
func runFuture[T any](fn func() (T, error)) *future[T] {
	f := &future[T]{done: make(chan struct{})}
	go func() {
		f.value, f.err = fn()
		close(f.done)
	}()
	return f
}

// resolvedFuture wraps a value that is already available, for operations
// cheap enough not to need their own goroutine (e.g. a loopback send that
// only pushes onto an in-process queue).
func resolvedFuture[T any](value T, err error) *future[T] {
	f := &future[T]{done: make(chan struct{}), value: value, err: err}
	close(f.done)
	return f
}

func (f *future[T]) Poll() (done bool, value T, err error) {
	select {
	case <-f.done:
		return true, f.value, f.err
	default:
		var zero T
		return false, zero, nil
	}
}

var (
	_ pkgraft.SaveFuture      = (*future[struct{}])(nil)
	_ pkgraft.LoadBallotFuture = (*future[*pkgraft.Ballot])(nil)
	_ pkgraft.LoadLogFuture    = (*future[pkgraft.Log])(nil)
	_ pkgraft.TimeoutFuture    = (*future[struct{}])(nil)
)
