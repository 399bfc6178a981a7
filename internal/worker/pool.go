// Package worker runs blocking calls on a fixed set of goroutines so that a
// burst of requests cannot start more engine calls than there are workers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrClosed = errors.New("worker pool is closed")

type Pool struct {
	jobs chan func()
	quit chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	size int
}

// NewPool starts size workers. Jobs are handed over unbuffered, so Submit
// waits until a worker is free.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		jobs: make(chan func()),
		quit: make(chan struct{}),
		size: size,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *Pool) Size() int { return p.size }

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		select {
		case job := <-p.jobs:
			job()
		case <-p.quit:
			return
		}
	}
}

// Close stops accepting jobs and waits for running ones to finish.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

type result[T any] struct {
	val T
	err error
}

// Submit runs fn on a worker and waits for its result. If ctx ends first,
// Submit returns ctx.Err() right away; a job that already started keeps its
// worker until fn returns and its result is dropped. A panic in fn is
// returned as an error.
func Submit[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	done := make(chan result[T], 1)
	job := func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: fmt.Errorf("worker panic: %v", r)}
			}
		}()
		v, err := fn()
		done <- result[T]{val: v, err: err}
	}

	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-p.quit:
		return zero, ErrClosed
	}

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
