package errgroup

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/LerianStudio/lib-bookshelf/bookshelf/log"
)

// ErrPanicRecovered is returned when a goroutine in the group panics.
var ErrPanicRecovered = errors.New("errgroup: panic recovered")

// Group runs goroutines that share a cancellation context.
// The first non-nil error cancels the context and is returned by Wait.
type Group struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
	logger  log.Logger
}

// WithContext returns a Group and a derived context that is canceled by the
// first failing goroutine or when Wait returns.
func WithContext(ctx context.Context) (*Group, context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	return &Group{ctx: ctx, cancel: cancel}, ctx
}

// SetLogger sets the logger used to report recovered panics.
func (grp *Group) SetLogger(logger log.Logger) {
	if grp == nil {
		return
	}

	grp.logger = logger
}

// Go runs fn in a new goroutine. A panic inside fn is recovered and recorded
// as an error wrapping ErrPanicRecovered.
func (grp *Group) Go(fn func() error) {
	grp.wg.Add(1)

	go func() {
		defer grp.wg.Done()
		defer func() {
			if recovered := recover(); recovered != nil {
				grp.logPanic(recovered)
				grp.fail(fmt.Errorf("%w: %v", ErrPanicRecovered, recovered))
			}
		}()

		if err := fn(); err != nil {
			grp.fail(err)
		}
	}()
}

// Wait blocks until every goroutine finished, cancels the group context and
// returns the first recorded error.
func (grp *Group) Wait() error {
	grp.wg.Wait()

	if grp.cancel != nil {
		grp.cancel()
	}

	return grp.err
}

func (grp *Group) fail(err error) {
	grp.errOnce.Do(func() {
		grp.err = err
		if grp.cancel != nil {
			grp.cancel()
		}
	})
}

func (grp *Group) logPanic(recovered any) {
	if grp.logger == nil || !grp.logger.Enabled(log.LevelError) {
		return
	}

	ctx := grp.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	grp.logger.Log(ctx, log.LevelError, "goroutine panic recovered",
		log.String("panic", fmt.Sprint(recovered)),
		log.String("stack", string(debug.Stack())),
	)
}
