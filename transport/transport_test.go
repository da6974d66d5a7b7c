package transport_test

import (
	"testing"
	"time"

	"github.com/nano-kit/transporter/transport"
)

func TestPipeDeliversAcrossEnds(t *testing.T) {
	a, b := transport.NewPipe(1)
	if err := a.Post("hello"); err != nil {
		t.Fatalf("Post: %v", err)
	}
	select {
	case msg := <-b.Receive():
		if msg.Payload != "hello" {
			t.Fatalf("Payload = %v, want hello", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestPipeIsDuplex(t *testing.T) {
	a, b := transport.NewPipe(1)
	if err := b.Post("from-b"); err != nil {
		t.Fatalf("Post: %v", err)
	}
	select {
	case msg := <-a.Receive():
		if msg.Payload != "from-b" {
			t.Fatalf("Payload = %v, want from-b", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestPipeCloseSignalsEndOfStreamToPeer(t *testing.T) {
	a, b := transport.NewPipe(1)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case _, ok := <-b.Receive():
		if ok {
			t.Fatal("expected closed channel, got a message")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for close to propagate")
	}
}

func TestPipePostAfterCloseFails(t *testing.T) {
	a, _ := transport.NewPipe(1)
	a.Close()
	if err := a.Post("too late"); err == nil {
		t.Fatal("Post after Close should fail")
	}
}

func TestPipeCloseIsIdempotent(t *testing.T) {
	a, _ := transport.NewPipe(1)
	if err := a.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
