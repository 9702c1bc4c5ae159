package logger

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// asyncWriter fans log lines out to its sinks from a single goroutine. A sink
// that fails is dropped and the rest keep receiving lines; Write fails only
// once every sink has failed.
type asyncWriter struct {
	queue    chan []byte
	flushReq chan chan error
	done     chan struct{}

	closeMu sync.RWMutex
	closed  bool

	mu    sync.Mutex
	sinks []*sink
	live  int
}

type sink struct {
	buf *bufio.Writer
	err error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		queue:    make(chan []byte, 256),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, &sink{buf: bufio.NewWriterSize(out, bufSize)})
		}
	}
	w.live = len(w.sinks)
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				w.flush()
				return
			}
			w.write(line)
		case ack := <-w.flushReq:
			ack <- w.flush()
		}
	}
}

// Write copies p and queues it, blocking while the queue is full so no line
// is lost.
func (w *asyncWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if err := w.dead(); err != nil {
		return err
	}
	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.queue <- bytes.Clone(p)
	return nil
}

// Flush waits until every queued line reached the sinks and reports the
// errors of failed sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushReq <- ack:
		return <-ack
	case <-w.done:
		return w.sinkErrs()
	}
}

// Close drains the queue and reports the errors of failed sinks.
func (w *asyncWriter) Close() error {
	w.closeMu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.closeMu.Unlock()
	<-w.done
	return w.sinkErrs()
}

func (w *asyncWriter) write(line []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sinks {
		if s.err != nil {
			continue
		}
		_, err := s.buf.Write(line)
		if err == nil {
			err = s.buf.Flush()
		}
		if err != nil {
			s.err = err
			w.live--
		}
	}
}

func (w *asyncWriter) flush() error {
	w.mu.Lock()
	for _, s := range w.sinks {
		if s.err != nil {
			continue
		}
		if err := s.buf.Flush(); err != nil {
			s.err = err
			w.live--
		}
	}
	w.mu.Unlock()
	return w.sinkErrs()
}

func (w *asyncWriter) sinkErrs() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, s := range w.sinks {
		if s.err != nil {
			errs = append(errs, s.err)
		}
	}
	return errors.Join(errs...)
}

// dead returns the sink errors once no sink is left to write to.
func (w *asyncWriter) dead() error {
	w.mu.Lock()
	gone := len(w.sinks) > 0 && w.live == 0
	w.mu.Unlock()
	if !gone {
		return nil
	}
	return w.sinkErrs()
}
