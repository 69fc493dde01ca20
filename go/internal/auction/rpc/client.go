package rpc

import (
	"context"
	"fmt"
	"strings"

	"connectrpc.com/connect"

	"github.com/mcdev12/fantasta/go/internal/auction/coordinator"
	"github.com/mcdev12/fantasta/go/internal/auction/engine"
)

// Client calls the authority's AuctionService. It implements
// coordinator.Forwarder.
type Client struct {
	commands map[coordinator.CommandType]*connect.Client[CommandRequest, CommandResponse]
	snapshot *connect.Client[Empty, SnapshotResponse]
}

var _ coordinator.Forwarder = (*Client)(nil)

// NewClient creates a client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)

	c := &Client{
		commands: make(map[coordinator.CommandType]*connect.Client[CommandRequest, CommandResponse], len(commandProcedures)),
		snapshot: connect.NewClient[Empty, SnapshotResponse](httpClient, baseURL+GetSnapshotProcedure, opts...),
	}
	for t, name := range commandProcedures {
		c.commands[t] = connect.NewClient[CommandRequest, CommandResponse](httpClient, baseURL+ServicePath+name, opts...)
	}
	return c
}

// Forward sends cmd to the authority. Rejections come back as the same
// sentinel errors the engine returns locally.
func (c *Client) Forward(ctx context.Context, cmd coordinator.Command) (coordinator.Result, error) {
	call, ok := c.commands[cmd.Type]
	if !ok {
		return coordinator.Result{}, fmt.Errorf("%w: %q", coordinator.ErrUnknownCommand, cmd.Type)
	}

	resp, err := call.CallUnary(ctx, connect.NewRequest(fromCommand(cmd)))
	if err != nil {
		return coordinator.Result{}, fmt.Errorf("forward %s: %w", cmd.Type, err)
	}

	res := coordinator.Result{
		Version:     resp.Msg.Version,
		Lot:         resp.Msg.Lot,
		Participant: resp.Msg.Participant,
	}
	if !resp.Msg.Accepted {
		return res, fmt.Errorf("%w: %s", rejectionError(resp.Msg.Code), resp.Msg.Reason)
	}
	return res, nil
}

// Snapshot fetches the authority's current state, tagged with the
// authority's instance id.
func (c *Client) Snapshot(ctx context.Context) (coordinator.Remote, error) {
	resp, err := c.snapshot.CallUnary(ctx, connect.NewRequest(&Empty{}))
	if err != nil {
		return coordinator.Remote{}, fmt.Errorf("get snapshot: %w", err)
	}
	if resp.Msg.InstanceID == "" {
		return coordinator.Remote{}, fmt.Errorf("get snapshot: %w: missing instance id", engine.ErrInvalidSnapshot)
	}
	if err := resp.Msg.Snapshot.Validate(); err != nil {
		return coordinator.Remote{}, err
	}
	return coordinator.Remote{
		InstanceID: resp.Msg.InstanceID,
		Version:    resp.Msg.Version,
		Snapshot:   resp.Msg.Snapshot,
	}, nil
}
