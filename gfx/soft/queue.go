// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package soft

import (
	"fmt"
	"sync"

	"github.com/devblok/hellotri/gfx"
	log "github.com/sirupsen/logrus"
)

type job func(r *rasterizer) error

// queue executes jobs in submission order on one goroutine.
type queue struct {
	jobs    chan job
	quit    chan struct{}
	done    chan struct{}
	stepper <-chan struct{}
	log     *log.Entry

	mu      sync.Mutex
	closed  bool
	removed error
}

func newQueue(stepper <-chan struct{}, l *log.Entry) *queue {
	q := &queue{
		jobs:    make(chan job, 64),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		stepper: stepper,
		log:     l,
	}
	go q.run()
	return q
}

func (q *queue) run() {
	defer close(q.done)
	r := &rasterizer{}
	for {
		var j job
		select {
		case j = <-q.jobs:
		case <-q.quit:
			return
		}
		if q.stepper != nil {
			select {
			case <-q.stepper:
			case <-q.quit:
				return
			}
		}
		if err := j(r); err != nil {
			q.remove(err)
		}
	}
}

func (q *queue) remove(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.removed == nil {
		q.removed = fmt.Errorf("%w: %s", gfx.ErrDeviceRemoved, err)
		q.log.WithError(err).Error("device removed")
	}
}

func (q *queue) enqueue(j job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return gfx.ErrReleased
	}
	q.mu.Unlock()

	select {
	case q.jobs <- j:
		return nil
	case <-q.quit:
		return gfx.ErrReleased
	}
}

func (q *queue) err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removed
}

// ExecuteCommandLists implements interface
func (q *queue) ExecuteCommandLists(lists ...gfx.CommandList) error {
	if err := q.err(); err != nil {
		return err
	}

	batch := make([]*commandList, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			return gfx.ErrWrongBackend
		}
		if cl.recording {
			return gfx.ErrListOpen
		}
		if cl.err != nil {
			return fmt.Errorf("executing invalid command list: %w", cl.err)
		}
		batch = append(batch, cl)
	}

	for _, cl := range batch {
		ops, alloc := cl.ops, cl.alloc
		alloc.pending.Add(1)
		if err := q.enqueue(func(r *rasterizer) error {
			defer alloc.pending.Add(-1)
			for _, o := range ops {
				if err := o(r); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			alloc.pending.Add(-1)
			return err
		}
	}
	return nil
}

// Signal implements interface
func (q *queue) Signal(f gfx.Fence, value uint64) error {
	sf, ok := f.(*fence)
	if !ok {
		return gfx.ErrWrongBackend
	}
	if err := sf.reserve(value); err != nil {
		return err
	}
	return q.enqueue(func(*rasterizer) error {
		sf.complete(value)
		return nil
	})
}

// Release stops the queue goroutine.
func (q *queue) Release() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.quit)
	q.mu.Unlock()
	<-q.done
}
