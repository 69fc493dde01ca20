package coordinator

import (
	"github.com/mcdev12/fantasta/go/internal/auction/engine"
)

// Msg is anything the coordinator loop accepts on its inbox.
type Msg interface{ isCoordinatorMsg() }

// Submit applies a command and replies with its outcome.
type Submit struct {
	Cmd   Command
	Reply chan Reply
}

func (Submit) isCoordinatorMsg() {}

// Reply is the outcome of a Submit.
type Reply struct {
	Result Result
	Err    error
}

// Join registers a subscriber; the current state is sent to Outbox right away.
type Join struct {
	ID     string
	Outbox chan Update
}

func (Join) isCoordinatorMsg() {}

// Leave removes a subscriber. Its outbox is closed.
type Leave struct{ ID string }

func (Leave) isCoordinatorMsg() {}

// Remote carries a snapshot published by another instance.
type Remote struct {
	InstanceID string
	Version    uint64
	Snapshot   engine.Snapshot
}

func (Remote) isCoordinatorMsg() {}

// Promote makes this instance the authority over its current state.
type Promote struct{}

func (Promote) isCoordinatorMsg() {}

// GetState replies with a consistent view of the coordinator.
type GetState struct {
	Reply chan View
}

func (GetState) isCoordinatorMsg() {}

// Shutdown stops the loop.
type Shutdown struct{}

func (Shutdown) isCoordinatorMsg() {}

// Update is what subscribers receive after every state change.
type Update struct {
	Version  uint64
	Origin   string // instance that produced the state
	Snapshot engine.Snapshot
}

// View is a point-in-time read of the coordinator.
type View struct {
	Version        uint64
	Role           Role
	NumSubscribers int
	Snapshot       engine.Snapshot
}
