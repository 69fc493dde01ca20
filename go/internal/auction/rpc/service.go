// Package rpc exposes the auction commands as connect unary procedures and
// provides the client followers use to reach the authority.
package rpc

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fantasta/go/internal/auction/coordinator"
	"github.com/mcdev12/fantasta/go/internal/auction/engine"
)

var ErrRejected = errors.New("command rejected")

// AuctionCoordinator defines what the service needs from the coordinator
type AuctionCoordinator interface {
	Submit(ctx context.Context, cmd coordinator.Command) (coordinator.Result, error)
	State(ctx context.Context) (coordinator.View, error)
	InstanceID() string
}

// Service implements the AuctionService procedures
type Service struct {
	coord AuctionCoordinator
}

// NewService creates a new auction RPC service
func NewService(coord AuctionCoordinator) *Service {
	return &Service{coord: coord}
}

// Handler builds the http.Handler serving every procedure under ServicePath.
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	for t, name := range commandProcedures {
		mux.Handle(ServicePath+name, connect.NewUnaryHandler(ServicePath+name, s.command(t), opts...))
	}
	mux.Handle(GetSnapshotProcedure, connect.NewUnaryHandler(GetSnapshotProcedure, s.GetSnapshot, opts...))
	return ServicePath, mux
}

func (s *Service) command(t coordinator.CommandType) func(context.Context, *connect.Request[CommandRequest]) (*connect.Response[CommandResponse], error) {
	return func(ctx context.Context, req *connect.Request[CommandRequest]) (*connect.Response[CommandResponse], error) {
		res, err := s.coord.Submit(ctx, toCommand(t, req.Msg))
		if err == nil {
			return connect.NewResponse(&CommandResponse{
				Accepted:    true,
				Version:     res.Version,
				Lot:         res.Lot,
				Participant: res.Participant,
			}), nil
		}

		if engine.IsRejection(err) {
			return connect.NewResponse(&CommandResponse{
				Accepted: false,
				Reason:   err.Error(),
				Code:     engine.RejectionCode(err),
				Version:  res.Version,
			}), nil
		}

		log.Debug().
			Err(err).
			Str("procedure", req.Spec().Procedure).
			Msg("command failed")
		return nil, connect.NewError(errorCode(err), err)
	}
}

// GetSnapshot returns the current state and the instance that owns it.
func (s *Service) GetSnapshot(ctx context.Context, _ *connect.Request[Empty]) (*connect.Response[SnapshotResponse], error) {
	view, err := s.coord.State(ctx)
	if err != nil {
		return nil, connect.NewError(errorCode(err), err)
	}
	return connect.NewResponse(&SnapshotResponse{
		InstanceID: s.coord.InstanceID(),
		Version:    view.Version,
		Snapshot:   view.Snapshot,
	}), nil
}

func errorCode(err error) connect.Code {
	switch {
	case errors.Is(err, engine.ErrInvalidLot),
		errors.Is(err, engine.ErrInvalidParticipant),
		errors.Is(err, engine.ErrInvalidCredits),
		errors.Is(err, coordinator.ErrUnknownCommand):
		return connect.CodeInvalidArgument
	case errors.Is(err, coordinator.ErrStopped),
		errors.Is(err, coordinator.ErrNoAuthority):
		return connect.CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	}
	return connect.CodeInternal
}
