package coap

import (
	"io"
	"testing"
	"time"
)

func TestResponseWaiterReturnResponse(t *testing.T) {
	w := newResponseWaiter(1)
	time.AfterFunc(10*time.Millisecond, func() { w.Done(&Response{Status: Created, Token: "1"}, nil) })
	resp, err := w.Wait(time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if resp.Status != Created {
		t.Errorf("status: %v", resp.Status)
	}
	if resp.Token != "1" {
		t.Errorf("token: %v", resp.Token)
	}
}

func TestResponseWaiterReturnErr(t *testing.T) {
	w := newResponseWaiter(1)
	time.AfterFunc(10*time.Millisecond, func() { w.Done(nil, io.EOF) })
	_, err := w.Wait(time.Second)
	if err != io.EOF {
		t.Errorf("wait: %v != %v", err, io.EOF)
	}
}

func TestResponseWaiterTimeout(t *testing.T) {
	w := newResponseWaiter(1)
	start := time.Now()
	_, err := w.Wait(50 * time.Millisecond)
	if err != ErrTimeout {
		t.Errorf("wait: %v != %v", err, ErrTimeout)
	}
	if d := time.Since(start); d < 50*time.Millisecond {
		t.Errorf("returned after %v", d)
	}

	// late deliveries are ignored
	w.Done(&Response{}, nil)
	if w.err != ErrTimeout {
		t.Errorf("late done overwrote result: %v", w.err)
	}
}
