package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vvka-141/txretry/pkg/txretry"
)

type depthKey struct{}

// fakePrimitive records boundaries the way a real transactor would:
// depth travels in the context and commits/rollbacks are counted.
type fakePrimitive struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
	logger    *recordingLogger
}

func newFakePrimitive() *fakePrimitive {
	return &fakePrimitive{logger: &recordingLogger{}}
}

func (p *fakePrimitive) Run(ctx context.Context, work func(ctx context.Context) error) error {
	depth, _ := ctx.Value(depthKey{}).(int)
	err := work(context.WithValue(ctx, depthKey{}, depth+1))

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.rollbacks++
		if errors.Is(err, txretry.ErrRollback) {
			return nil
		}
		return err
	}
	p.commits++
	return nil
}

func (p *fakePrimitive) OpenBoundaries(ctx context.Context) int {
	depth, _ := ctx.Value(depthKey{}).(int)
	return depth
}

func (p *fakePrimitive) Logger(context.Context) txretry.Logger {
	if p.logger == nil {
		return nil
	}
	return p.logger
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Verbose(string, ...interface{}) {}
func (l *recordingLogger) Info(string, ...interface{})    {}
func (l *recordingLogger) Error(string, ...interface{})   {}

func (l *recordingLogger) Warn(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

// recordingSleeper captures every pause instead of waiting.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}
