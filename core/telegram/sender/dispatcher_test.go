package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"
)

func TestDispatcherKeepsPerKeyOrder(t *testing.T) {
	d := NewDispatcher(Options{Workers: 4, QueueSize: 128})

	var (
		mu  sync.Mutex
		got = map[string][]int{}
	)
	for i := 0; i < 50; i++ {
		for _, key := range []string{"a", "b", "c"} {
			i, key := i, key
			err := d.Enqueue(context.Background(), key, "send.text", "sendMessage", func() error {
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Fatalf("enqueue %s/%d: %v", key, i, err)
			}
		}
	}
	d.Close()

	for key, seq := range got {
		if len(seq) != 50 {
			t.Fatalf("%s: got %d jobs", key, len(seq))
		}
		for i, v := range seq {
			if v != i {
				t.Fatalf("%s: job %d ran at position %d", key, v, i)
			}
		}
	}
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})

	calls := 0
	timeout := &timeoutErr{}
	done := make(chan struct{})
	err := d.Enqueue(context.Background(), "k", "send.text", "sendMessage", func() error {
		calls++
		if calls < 3 {
			return timeout
		}
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-done
	d.Close()
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if d.ErrorCount() != 0 {
		t.Fatalf("error count = %d", d.ErrorCount())
	}
}

func TestDispatcherCountsPermanentFailures(t *testing.T) {
	d := NewDispatcher(Options{Workers: 2, MaxRetries: 3})
	for i := 0; i < 3; i++ {
		if err := d.Enqueue(context.Background(), fmt.Sprint(i), "send.text", "", func() error {
			return errors.New("bad request (400)")
		}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	d.Close()
	if d.ErrorCount() != 3 {
		t.Fatalf("error count = %d, want 3", d.ErrorCount())
	}
}

func TestDispatcherClosedAndFull(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1, EnqueueWait: 10 * time.Millisecond})
	block := make(chan struct{})
	started := make(chan struct{})
	if err := d.Enqueue(context.Background(), "k", "a", "", func() error { close(started); <-block; return nil }); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-started
	if err := d.Enqueue(context.Background(), "k", "b", "", func() error { return nil }); err != nil {
		t.Fatalf("enqueue into free slot: %v", err)
	}
	if err := d.Enqueue(context.Background(), "k", "c", "", func() error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	close(block)
	d.Close()
	d.Close()
	if err := d.Enqueue(context.Background(), "k", "d", "", func() error { return nil }); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestEnqueueWaitsForRoom(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1, EnqueueWait: 5 * time.Second})
	block := make(chan struct{})
	started := make(chan struct{})
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) func() error {
		return func() error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	if err := d.Enqueue(context.Background(), "k", "a", "", func() error { close(started); <-block; return record("a")() }); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-started
	if err := d.Enqueue(context.Background(), "k", "b", "", record("b")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	time.AfterFunc(20*time.Millisecond, func() { close(block) })
	if err := d.Enqueue(context.Background(), "k", "c", "", record("c")); err != nil {
		t.Fatalf("enqueue after wait: %v", err)
	}
	d.Close()
	if got := fmt.Sprint(order); got != "[a b c]" {
		t.Fatalf("order = %s", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	full := NewDispatcher(Options{Workers: 1, QueueSize: 1, EnqueueWait: time.Hour})
	hold := make(chan struct{})
	running := make(chan struct{})
	_ = full.Enqueue(context.Background(), "k", "a", "", func() error { close(running); <-hold; return nil })
	<-running
	_ = full.Enqueue(context.Background(), "k", "b", "", func() error { return nil })
	if err := full.Enqueue(ctx, "k", "c", "", func() error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull on cancelled ctx, got %v", err)
	}
	close(hold)
	full.Close()
}

func TestSlotRoundRobinWraps(t *testing.T) {
	d := NewDispatcher(Options{Workers: 3})
	defer d.Close()
	d.next.Store(^uint32(0) - 1)
	for i := 0; i < 4; i++ {
		if s := d.slot(""); s < 0 || s >= 3 {
			t.Fatalf("slot = %d", s)
		}
	}
}

func TestRedactHidesToken(t *testing.T) {
	msg := redact(errors.New(`Post "https://api.telegram.org/bot123:ABC-def/sendMessage": timeout`))
	if want := `Post "https://api.telegram.org/bot<redacted>/sendMessage": timeout`; msg != want {
		t.Fatalf("redacted = %s", msg)
	}
}

func TestClassifyError(t *testing.T) {
	cases := map[string]error{
		"http_4xx": errors.New("Forbidden (403)"),
		"http_5xx": errors.New("telegram: Bad Gateway (502)"),
		"timeout":  fmt.Errorf("send: %w", context.DeadlineExceeded),
		"dns":      &net.DNSError{Err: "no such host", Name: "api.telegram.org"},
		"unknown":  errors.New("boom"),
	}
	for want, err := range cases {
		if got := classifyError(err); got != want {
			t.Fatalf("classifyError(%v) = %s, want %s", err, got, want)
		}
	}
}

type timeoutErr struct{}

func (*timeoutErr) Error() string   { return "i/o timeout" }
func (*timeoutErr) Timeout() bool   { return true }
func (*timeoutErr) Temporary() bool { return true }
