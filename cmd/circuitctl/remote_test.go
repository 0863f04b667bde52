package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/WessleyAI/wessley-circuit/engine/bridge"
	"github.com/WessleyAI/wessley-circuit/engine/events"
	"github.com/WessleyAI/wessley-circuit/engine/runtime"
	"github.com/WessleyAI/wessley-circuit/pkg/natsutil"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startTestNATS(t *testing.T) (*nats.Conn, string) {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc, srv.ClientURL()
}

func TestSend(t *testing.T) {
	nc, url := startTestNATS(t)
	got := make(chan runtime.Command, 1)
	sub, err := natsutil.Handle(nc, bridge.CommandSubject("lab"), "test", func(_ context.Context, c runtime.Command) bridge.Reply {
		got <- c
		if c.Op == runtime.OpUnregister {
			return bridge.Reply{Error: "nope"}
		}
		return bridge.Reply{OK: true, Powered: true}
	}, func(err error) bridge.Reply { return bridge.Reply{Error: err.Error()} })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "send", "--nats-url", url, "--prefix", "lab",
		"register", "bat", "--kind", "battery", "--label", "Main")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(out, "register bat: ON") {
		t.Fatalf("unexpected output %q", out)
	}
	c := <-got
	if c.Kind != "battery" || c.Label != "Main" || c.ID != "bat" || c.Closed != nil {
		t.Fatalf("unexpected command %+v", c)
	}

	if _, err := execute(t, "send", "--nats-url", url, "--prefix", "lab", "set_switch", "sw", "--closed=false"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c := <-got; c.Closed == nil || *c.Closed {
		t.Fatalf("explicit --closed=false not sent: %+v", c)
	}

	if _, err := execute(t, "send", "--nats-url", url, "--prefix", "lab", "unregister", "bat"); err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestSendValidatesLocally(t *testing.T) {
	// No server is needed: validation fails before connecting.
	tests := [][]string{
		{"send", "explode", "x"},
		{"send", "connect", "a"},
		{"send", "register", "a", "--kind", "flux"},
		{"send", "set_switch", "s"},
	}
	for _, args := range tests {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestWatch(t *testing.T) {
	nc, url := startTestNATS(t)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"watch", "--nats-url", url, "--prefix", "lab", "--count", "1"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	ev := events.PowerEvent{EventID: "e1", Circuit: "lab", ID: "led", Powered: true, At: time.Now()}
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("watch: %v", err)
			}
			if !strings.Contains(out.String(), "led ON") {
				t.Fatalf("unexpected output %q", out.String())
			}
			return
		case <-tick.C:
			if err := natsutil.Publish(ctx, nc, bridge.PowerSubject("lab", "led"), ev); err != nil {
				t.Fatal(err)
			}
		case <-ctx.Done():
			t.Fatal("watch did not exit")
		}
	}
}
