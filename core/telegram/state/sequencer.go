package state

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/nyamedia/nyabot/core/logger"
	"github.com/nyamedia/nyabot/core/metrics"
)

const maxStack = 4096

// Sequencer runs tasks one at a time per key, in submission order, while
// different keys proceed concurrently. Each busy key owns one goroutine that
// drains its queue and exits when the queue is empty. A panicking task is
// logged and counted; the queue keeps draining.
type Sequencer struct {
	mu     sync.Mutex
	queues map[int64][]func()
	wg     sync.WaitGroup
}

// NewSequencer returns an idle Sequencer.
func NewSequencer() *Sequencer {
	return &Sequencer{queues: make(map[int64][]func())}
}

// Go appends task to the queue of key and returns immediately.
func (s *Sequencer) Go(key int64, task func()) {
	if task == nil {
		return
	}
	s.mu.Lock()
	q, busy := s.queues[key]
	s.queues[key] = append(q, task)
	if !busy {
		s.wg.Add(1)
		go s.drain(key)
	}
	s.mu.Unlock()
}

// Wait blocks until every queue is empty and its worker has exited.
func (s *Sequencer) Wait() {
	s.wg.Wait()
}

func (s *Sequencer) drain(key int64) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		q := s.queues[key]
		if len(q) == 0 {
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		task := q[0]
		q[0] = nil
		s.queues[key] = q[1:]
		s.mu.Unlock()

		run(key, task)
	}
}

func run(key int64, task func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		metrics.TelegramPanics.WithLabelValues("sequencer").Inc()
		stack := debug.Stack()
		if len(stack) > maxStack {
			stack = stack[:maxStack]
		}
		logger.Error(context.Background(), "state", "panic",
			slog.Int64("chat_id", key),
			slog.String("err", logger.SanitizeLimit(fmt.Sprint(r), 512)),
			slog.String("stack", string(stack)),
		)
	}()
	task()
}
