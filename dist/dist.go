// Package dist fans independent file units out over a bounded goroutine pool.
package dist

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/model-collapse/panoptic-prep/util"
)

// Unit is one file to process. Index is its position in the submitted list.
type Unit struct {
	Index int
	Path  string
}

type Outcome[T any] struct {
	Unit  Unit
	Value T
	Err   error
}

// Run processes every path with fn on at most workers goroutines and returns
// the outcomes in submission order. A failing or panicking unit never stops
// its siblings. Once ctx is cancelled, units that have not started yet fail
// with ctx.Err().
func Run[T any](ctx context.Context, workers int, paths []string, fn func(context.Context, Unit) (T, error)) []Outcome[T] {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, max(len(paths), 1))

	ret := make([]Outcome[T], len(paths))
	chUnit := make(chan Unit, workers)
	go func() {
		for i, p := range paths {
			chUnit <- Unit{Index: i, Path: p}
		}
		close(chUnit)
	}()

	wg := sync.WaitGroup{}
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for u := range chUnit {
				ret[u.Index] = runOne(ctx, u, fn)
			}
		}()
	}
	wg.Wait()

	return ret
}

func runOne[T any](ctx context.Context, u Unit, fn func(context.Context, Unit) (T, error)) (o Outcome[T]) {
	o.Unit = u
	if err := ctx.Err(); err != nil {
		o.Err = err
		return
	}

	defer func() {
		if e := recover(); e != nil {
			util.Logger.Error("unit panicked", zap.String("file", u.Path), zap.Any("panic", e), zap.ByteString("stack", debug.Stack()))
			o.Err = fmt.Errorf("panic: %v", e)
		}
	}()

	o.Value, o.Err = fn(ctx, u)
	return
}

type Failure struct {
	Path string
	Err  error
}

type Summary struct {
	Succeeded int
	Failed    int
	Failures  []Failure
}

func Summarize[T any](outcomes []Outcome[T]) (s Summary) {
	for _, o := range outcomes {
		if o.Err != nil {
			s.Failed++
			s.Failures = append(s.Failures, Failure{Path: o.Unit.Path, Err: o.Err})
			continue
		}
		s.Succeeded++
	}
	return
}
