package ws_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nano-kit/transporter/transport/ws"
)

func TestListenDialPostReceiveRoundTrip(t *testing.T) {
	const addr = "127.0.0.1:18765"
	const path = "/transporter-test"

	listener, err := ws.Listen(addr, path)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	// Give the background http.Server goroutine a moment to start
	// accepting connections before dialing it.
	time.Sleep(50 * time.Millisecond)

	client, err := ws.Dial("ws://" + addr + path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	serverSide, err := listener.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer serverSide.Close()

	if err := client.Post(map[string]any{"hello": "world"}); err != nil {
		t.Fatalf("Post: %v", err)
	}

	select {
	case msg := <-serverSide.Receive():
		raw, ok := msg.Payload.(json.RawMessage)
		if !ok {
			t.Fatalf("Payload = %#v (%T), want json.RawMessage", msg.Payload, msg.Payload)
		}
		if !strings.Contains(string(raw), "world") {
			t.Fatalf("Payload = %s, want it to contain %q", raw, "world")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message on the accepted side")
	}
}

func TestDialUnreachableFails(t *testing.T) {
	_, err := ws.Dial("ws://127.0.0.1:1/unreachable")
	if err == nil {
		t.Fatal("Dial to an unreachable address should fail")
	}
}
