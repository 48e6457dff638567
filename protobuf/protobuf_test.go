package protobuf

import (
	"testing"
	"time"

	"go.uber.org/goleak"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jabolina/goprocess/pid"
	"github.com/jabolina/goprocess/process"
)

type greeter struct {
	*process.Base

	received chan string
}

func newGreeter(id string) *greeter {
	g := &greeter{Base: process.NewBase(id), received: make(chan string, 1)}
	InstallProto(g.Base, &wrapperspb.StringValue{}, func(sender pid.PID, msg proto.Message) {
		if sv, ok := msg.(*wrapperspb.StringValue); ok {
			g.received <- sv.GetValue()
		}
	})
	return g
}

func TestInstallProto_RoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, err := process.New(process.WithIP("127.0.0.1"), process.WithPort(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx.Start()
	defer ctx.Stop()

	g := newGreeter("greeter")
	p, err := ctx.Spawn(g)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if err := SendProto(ctx, p, p, wrapperspb.String("hello")); err != nil {
		t.Fatalf("SendProto: %v", err)
	}

	select {
	case got := <-g.received:
		if got != "hello" {
			t.Fatalf("received %q, want hello", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for delivery")
	}
}
