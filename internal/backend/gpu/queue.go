package gpu

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/cortex/internal/tensor"
)

// command is one unit of queued device work. The buffers it touches stay retained
// until it has run, so their storage cannot return to the pool while in flight.
type command struct {
	name     string
	run      func() error
	retained []*tensor.Buffer
	done     chan struct{} // closed after run, for sync markers
}

// commandQueue executes commands in submission order on a single goroutine.
// The first failure is kept and reported by the next sync; later commands are
// skipped until then because their inputs may be garbage.
type commandQueue struct {
	log *logrus.Entry

	mu      sync.Mutex
	cond    *sync.Cond
	pending []command
	closed  bool
	err     error
	stopped chan struct{}
}

func newCommandQueue(log *logrus.Entry) *commandQueue {
	q := &commandQueue{
		log:     log,
		stopped: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q
}

// enqueue schedules run after every previously enqueued command.
func (q *commandQueue) enqueue(name string, run func() error, buffers ...*tensor.Buffer) {
	for _, b := range buffers {
		b.Retain()
	}
	commandsEnqueued.WithLabelValues(name).Inc()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		for _, b := range buffers {
			b.Release()
		}
		return
	}
	q.pending = append(q.pending, command{name: name, run: run, retained: buffers})
	q.cond.Signal()
}

// sync waits for every enqueued command and returns the first error since the last sync.
func (q *commandQueue) sync() error {
	done := make(chan struct{})
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.pending = append(q.pending, command{name: "sync", done: done})
	q.cond.Signal()
	q.mu.Unlock()

	<-done

	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.err
	q.err = nil
	return err
}

func (q *commandQueue) loop() {
	defer close(q.stopped)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		cmd := q.pending[0]
		q.pending = q.pending[1:]
		failed := q.err != nil
		q.mu.Unlock()

		if cmd.run != nil && !failed {
			if err := cmd.run(); err != nil {
				commandFailures.Inc()
				q.log.WithError(err).WithField("command", cmd.name).Error("device command failed")
				q.mu.Lock()
				if q.err == nil {
					q.err = tensor.Rekind(cmd.name, tensor.ErrDeviceExecution, err)
				}
				q.mu.Unlock()
			}
		}
		for _, b := range cmd.retained {
			b.Release()
		}
		if cmd.done != nil {
			close(cmd.done)
		}
	}
}

// close drains the queue and stops its goroutine.
func (q *commandQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.stopped
}
