package logger

import (
	"bufio"
	"io"
	"sync"
)

// op is one unit of work for the writer goroutine: a line to write, or a
// flush request when ack is set. Both travel through the same queue so a
// flush covers every line written before it.
type op struct {
	line []byte
	ack  chan error
}

// asyncWriter fans formatted lines out to its sinks on a single goroutine.
type asyncWriter struct {
	ops  chan op
	done chan struct{}
	once sync.Once
	out  *bufio.Writer

	mu  sync.Mutex
	err error
}

func newAsyncWriter(sinks []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	live := make([]io.Writer, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	w := &asyncWriter{
		ops:  make(chan op, 256),
		done: make(chan struct{}),
		out:  bufio.NewWriterSize(io.MultiWriter(live...), bufSize),
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for o := range w.ops {
		if o.ack != nil {
			o.ack <- w.out.Flush()
			continue
		}
		if _, err := w.out.Write(o.line); err != nil {
			w.fail(err)
			continue
		}
		// flush once the burst is drained so lines reach the sinks promptly
		if len(w.ops) == 0 {
			if err := w.out.Flush(); err != nil {
				w.fail(err)
			}
		}
	}
	if err := w.out.Flush(); err != nil {
		w.fail(err)
	}
}

// Write copies p and queues it. It blocks when the queue is full rather than
// dropping lines.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.ops <- op{line: append([]byte(nil), p...)}
	return nil
}

// Flush returns once every line queued before the call has been written.
func (w *asyncWriter) Flush() error {
	if err := w.firstErr(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	select {
	case w.ops <- op{ack: ack}:
		return <-ack
	case <-w.done:
		return w.firstErr()
	}
}

// Close drains the queue and reports the first write error.
func (w *asyncWriter) Close() error {
	w.once.Do(func() { close(w.ops) })
	<-w.done
	return w.firstErr()
}

func (w *asyncWriter) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

func (w *asyncWriter) firstErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
