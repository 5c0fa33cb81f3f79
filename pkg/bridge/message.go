package bridge

import (
	"github.com/GoAskAway/rill-sub003/pkg/promise"
	"github.com/GoAskAway/rill-sub003/pkg/registry"
)

// MessageType discriminates the Host→Guest message variants.
type MessageType string

const (
	TypeCallFunction   MessageType = "CALL_FUNCTION"
	TypeHostEvent      MessageType = "HOST_EVENT"
	TypeConfigUpdate   MessageType = "CONFIG_UPDATE"
	TypePromiseResolve MessageType = "PROMISE_RESOLVE"
	TypePromiseReject  MessageType = "PROMISE_REJECT"
	TypeDestroy        MessageType = "DESTROY"
)

// HostMessage is the closed sum type of everything the Host can send to
// the Guest. It is modeled as an interface with a Type method rather
// than a single struct with optional fields, so each variant is its own
// concrete type that a type switch dispatches on.
type HostMessage interface {
	Type() MessageType
}

// CallFunction invokes a Guest-registered callback by id. Seq, when
// set, lets the Guest dispatcher order or deduplicate calls; it has no
// meaning to the Bridge itself.
type CallFunction struct {
	FnId registry.FnId
	Args []any
	Seq  *int
}

func (CallFunction) Type() MessageType { return TypeCallFunction }

// HostEvent carries a named Host-originated event (e.g.
// RECEIVER_BACKPRESSURE) with an arbitrary payload.
type HostEvent struct {
	EventName string
	Payload   any
}

func (HostEvent) Type() MessageType { return TypeHostEvent }

// ConfigUpdate pushes a new configuration value down to the Guest.
type ConfigUpdate struct {
	Config any
}

func (ConfigUpdate) Type() MessageType { return TypeConfigUpdate }

// PromiseResolve fulfills a Guest-held pending promise.
type PromiseResolve struct {
	PromiseId promise.PromiseId
	Value     any
}

func (PromiseResolve) Type() MessageType { return TypePromiseResolve }

// PromiseReject rejects a Guest-held pending promise. Error is an
// encoded Error envelope, matching the wire shape of a live error value.
type PromiseReject struct {
	PromiseId promise.PromiseId
	Error     any
}

func (PromiseReject) Type() MessageType { return TypePromiseReject }

// Destroy tells the Guest dispatcher to tear itself down.
type Destroy struct{}

func (Destroy) Type() MessageType { return TypeDestroy }
