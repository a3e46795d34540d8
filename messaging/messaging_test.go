package messaging

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// startServer runs an embedded NATS server on a random port.
func startServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("server not ready")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestConnectRequiresURL(t *testing.T) {
	if _, err := Connect(&Config{}, nil); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestConnectBadSubjectClosesConnection(t *testing.T) {
	srv := startServer(t)

	_, err := Connect(&Config{URL: srv.ClientURL(), Subjects: []string{""}}, nil)
	if err == nil {
		t.Fatal("expected error for invalid subject")
	}
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	srv := startServer(t)

	recv, err := Connect(&Config{URL: srv.ClientURL(), Subjects: []string{"events"}}, nil)
	if err != nil {
		t.Fatalf("connect receiver: %v", err)
	}
	defer recv.Close()

	send, err := Connect(&Config{URL: srv.ClientURL()}, nil)
	if err != nil {
		t.Fatalf("connect sender: %v", err)
	}
	defer send.Close()

	stop := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() { done <- recv.Run(stop) }()

	if err := send.Publish("events", []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg, ok := waitNext(t, recv)
	if !ok {
		t.Fatal("no message received")
	}
	if msg.Subject != "events" || string(msg.Data) != "hello" {
		t.Errorf("unexpected message: %q %q", msg.Subject, msg.Data)
	}

	stop <- struct{}{}
	if err := <-done; err != nil {
		t.Errorf("loop returned error: %v", err)
	}
}

func TestSubscribeAfterConnect(t *testing.T) {
	srv := startServer(t)

	recv, err := Connect(&Config{URL: srv.ClientURL()}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer recv.Close()

	if err := recv.Subscribe("late"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	send, err := Connect(&Config{URL: srv.ClientURL()}, nil)
	if err != nil {
		t.Fatalf("connect sender: %v", err)
	}
	defer send.Close()

	stop := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() { done <- recv.Run(stop) }()

	if err := send.Publish("late", []byte("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, ok := waitNext(t, recv); !ok {
		t.Fatal("message on late subscription not delivered")
	}

	stop <- struct{}{}
	<-done
}

func TestRunStopsOnSignal(t *testing.T) {
	srv := startServer(t)

	c, err := Connect(&Config{URL: srv.ClientURL()}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	stop := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() { done <- c.Run(stop) }()

	stop <- struct{}{}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestRunEndsOnConnectionClose(t *testing.T) {
	srv := startServer(t)

	c, err := Connect(&Config{URL: srv.ClientURL()}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	stop := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() { done <- c.Run(stop) }()

	c.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not end after connection close")
	}
}

func TestNextEmpty(t *testing.T) {
	srv := startServer(t)

	c, err := Connect(&Config{URL: srv.ClientURL()}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if _, ok := c.Next(); ok {
		t.Error("expected empty inbox")
	}
}

// waitNext polls Next until a message arrives or a deadline passes; the
// loop goroutine fills the inbox asynchronously.
func waitNext(t *testing.T, c *Conn) (Message, bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msg, ok := c.Next(); ok {
			return msg, true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return Message{}, false
}
