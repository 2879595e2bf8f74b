package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAutoApproveBypassesHuman(t *testing.T) {
	gate := NewGate("s1", WithAutoApprove(true))
	defer gate.Shutdown()

	called := false
	gate.SetCallback(func(req *Request) { called = true })

	resp, err := gate.Request(context.Background(), "write_file", "write foo.txt", nil, []string{"write_files"})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if !resp.Approved {
		t.Error("auto-approve should approve")
	}
	if called {
		t.Error("callback should not run under auto-approve")
	}
}

func TestCallbackApproval(t *testing.T) {
	gate := NewGate("s1", WithTimeout(5*time.Second))
	defer gate.Shutdown()

	gate.SetCallback(func(req *Request) {
		go req.Respond(Response{Approved: true})
	})

	resp, err := gate.Request(context.Background(), "run_command", "run ls", map[string]interface{}{"command": "ls"}, []string{"execute_shell"})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if !resp.Approved {
		t.Error("expected approval")
	}
}

func TestCallbackDenial(t *testing.T) {
	gate := NewGate("s1", WithTimeout(5*time.Second))
	defer gate.Shutdown()

	gate.SetCallback(func(req *Request) {
		go req.Respond(Response{Approved: false, Reason: "too risky"})
	})

	resp, err := gate.Request(context.Background(), "delete_file", "delete foo", nil, nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.Approved {
		t.Error("expected denial")
	}
	if resp.Reason != "too risky" {
		t.Errorf("reason = %q, want %q", resp.Reason, "too risky")
	}
}

func TestUnansweredRequestTimesOutDenied(t *testing.T) {
	gate := NewGate("s1", WithTimeout(50*time.Millisecond))
	defer gate.Shutdown()

	start := time.Now()
	resp, err := gate.Request(context.Background(), "write_file", "write", nil, nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.Approved {
		t.Error("timed-out request must deny")
	}
	if resp.Reason != TimeoutReason {
		t.Errorf("reason = %q, want %q", resp.Reason, TimeoutReason)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("resolved too early: %v", elapsed)
	}
}

func TestLateRespondAfterTimeoutIsIgnored(t *testing.T) {
	gate := NewGate("s1", WithTimeout(20*time.Millisecond))
	defer gate.Shutdown()

	var captured *Request
	var mu sync.Mutex
	gate.SetCallback(func(req *Request) {
		mu.Lock()
		captured = req
		mu.Unlock()
	})

	resp, err := gate.Request(context.Background(), "write_file", "write", nil, nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.Approved {
		t.Error("expected timeout denial")
	}

	mu.Lock()
	req := captured
	mu.Unlock()
	if req == nil {
		t.Fatal("callback never received the request")
	}
	if req.Respond(Response{Approved: true}) {
		t.Error("late Respond should report not delivered")
	}
}

func TestSecondConcurrentRequestRejected(t *testing.T) {
	gate := NewGate("s1", WithTimeout(time.Second))
	defer gate.Shutdown()

	release := make(chan struct{})
	gate.SetCallback(func(req *Request) {
		go func() {
			<-release
			req.Respond(Response{Approved: true})
		}()
	})

	firstDone := make(chan error, 1)
	go func() {
		_, err := gate.Request(context.Background(), "tool_a", "", nil, nil)
		firstDone <- err
	}()

	// Wait for the first request to become pending.
	deadline := time.Now().Add(time.Second)
	for {
		gate.mu.Lock()
		pending := gate.pending != nil
		gate.mu.Unlock()
		if pending {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first request never became pending")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := gate.Request(context.Background(), "tool_b", "", nil, nil)
	if !errors.Is(err, ErrRequestPending) {
		t.Errorf("second request error = %v, want ErrRequestPending", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Errorf("first request failed: %v", err)
	}
}

func TestShutdownResolvesOutstandingToDenied(t *testing.T) {
	gate := NewGate("s1", WithTimeout(time.Minute))

	done := make(chan Response, 1)
	go func() {
		resp, err := gate.Request(context.Background(), "write_file", "write", nil, nil)
		if err != nil {
			t.Errorf("Request failed: %v", err)
		}
		done <- resp
	}()

	// Let the request start waiting, then shut down.
	time.Sleep(20 * time.Millisecond)
	gate.Shutdown()

	select {
	case resp := <-done:
		if resp.Approved {
			t.Error("shutdown must resolve outstanding request to denied")
		}
	case <-time.After(time.Second):
		t.Fatal("shutdown left the request hanging")
	}

	// New requests after shutdown fail fast.
	if _, err := gate.Request(context.Background(), "write_file", "", nil, nil); !errors.Is(err, ErrGateClosed) {
		t.Errorf("post-shutdown error = %v, want ErrGateClosed", err)
	}
}

func TestContextCancellationReturnsError(t *testing.T) {
	gate := NewGate("s1", WithTimeout(time.Minute))
	defer gate.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := gate.Request(ctx, "write_file", "", nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
