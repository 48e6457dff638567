// Package protobuf is a thin adaptor layer over process.Base/process.Context
// for actors that would rather declare protobuf message types than raw byte
// mailboxes. It never touches the core dispatch path: InstallProto and
// SendProto compile down to an ordinary Base.Install and Context.Send.
package protobuf

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"

	"github.com/jabolina/goprocess/errs"
	"github.com/jabolina/goprocess/pid"
	"github.com/jabolina/goprocess/process"
)

// ProtoHandler answers a decoded protobuf message the way a
// process.MessageHandler answers raw bytes.
type ProtoHandler func(sender pid.PID, msg proto.Message)

// InstallProto registers a mailbox named after msg's fully-qualified
// descriptor name, unmarshaling the inbound body into a fresh instance of
// msg's concrete type before calling handler. A malformed body is dropped
// silently, matching the mailbox contract that delivery never returns a
// value to the sender.
func InstallProto(base *process.Base, msg proto.Message, handler ProtoHandler) {
	name := string(msg.ProtoReflect().Descriptor().FullName())

	base.Install(name, func(sender pid.PID, body []byte) {
		instance := msg.ProtoReflect().New().Interface()
		if err := proto.Unmarshal(body, instance); err != nil {
			return
		}
		handler(sender, instance)
	})
}

// SendProto marshals msg and sends it to to using the descriptor's
// fully-qualified name as the wire method, so it lands in the mailbox
// InstallProto registered for that message type.
func SendProto(ctx *process.Context, from, to pid.PID, msg proto.Message) error {
	body, err := proto.Marshal(msg)
	if err != nil {
		return errors.Wrapf(errs.ErrInvalidMethod, "marshal %T: %v", msg, err)
	}
	name := string(msg.ProtoReflect().Descriptor().FullName())
	return ctx.Send(from, to, name, body)
}
