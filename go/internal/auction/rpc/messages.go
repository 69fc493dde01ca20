package rpc

import (
	"github.com/mcdev12/fantasta/go/internal/auction/coordinator"
	"github.com/mcdev12/fantasta/go/internal/auction/engine"
	"github.com/mcdev12/fantasta/go/internal/models"
)

const (
	// ServiceName is the fully-qualified name of the auction service.
	ServiceName = "fantasta.auction.v1.AuctionService"
	// ServicePath is the mount point of every procedure.
	ServicePath = "/" + ServiceName + "/"

	GetSnapshotProcedure = ServicePath + "GetSnapshot"
)

// CommandRequest is the body of every command procedure. Only the fields the
// procedure needs are read.
type CommandRequest struct {
	ParticipantID  string       `json:"participantId,omitempty"`
	Name           string       `json:"name,omitempty"`
	TeamName       string       `json:"teamName,omitempty"`
	PictureRef     string       `json:"pictureRef,omitempty"`
	Amount         int          `json:"amount,omitempty"`
	InitialCredits int          `json:"initialCredits,omitempty"`
	Lot            *models.Lot  `json:"lot,omitempty"`
	Lots           []models.Lot `json:"lots,omitempty"`
}

// CommandResponse reports whether the engine accepted the command. Expected
// rejections are not RPC errors: Accepted is false and Reason says why.
type CommandResponse struct {
	Accepted    bool                `json:"accepted"`
	Reason      string              `json:"reason,omitempty"`
	Code        string              `json:"code,omitempty"`
	Version     uint64              `json:"version"`
	Lot         *models.Lot         `json:"lot,omitempty"`
	Participant *models.Participant `json:"participant,omitempty"`
}

// Empty is the request of GetSnapshot.
type Empty struct{}

// SnapshotResponse is the current state of the authority.
type SnapshotResponse struct {
	InstanceID string          `json:"instanceId"`
	Version    uint64          `json:"version"`
	Snapshot   engine.Snapshot `json:"snapshot"`
}

// commandProcedures maps every forwardable command to its procedure name.
var commandProcedures = map[coordinator.CommandType]string{
	coordinator.CmdSetLots:        "SetLots",
	coordinator.CmdAddLot:         "AddLot",
	coordinator.CmdAddParticipant: "AddParticipant",
	coordinator.CmdSetReady:       "SetReady",
	coordinator.CmdSetTeamName:    "SetTeamName",
	coordinator.CmdSetPicture:     "SetPicture",
	coordinator.CmdInitialize:     "Initialize",
	coordinator.CmdStart:          "Start",
	coordinator.CmdPause:          "Pause",
	coordinator.CmdResume:         "Resume",
	coordinator.CmdBid:            "PlaceBid",
	coordinator.CmdStartRehearsal: "StartRehearsal",
	coordinator.CmdStopRehearsal:  "StopRehearsal",
	coordinator.CmdReset:          "Reset",
}

func rejectionError(code string) error {
	if err, ok := engine.RejectionFromCode(code); ok {
		return err
	}
	return ErrRejected
}

func toCommand(t coordinator.CommandType, req *CommandRequest) coordinator.Command {
	cmd := coordinator.Command{
		Type:           t,
		ParticipantID:  req.ParticipantID,
		Name:           req.Name,
		Amount:         req.Amount,
		InitialCredits: req.InitialCredits,
		Lot:            req.Lot,
		Lots:           req.Lots,
	}
	switch t {
	case coordinator.CmdSetTeamName:
		cmd.Value = req.TeamName
	case coordinator.CmdSetPicture:
		cmd.Value = req.PictureRef
	}
	return cmd
}

func fromCommand(cmd coordinator.Command) *CommandRequest {
	req := &CommandRequest{
		ParticipantID:  cmd.ParticipantID,
		Name:           cmd.Name,
		Amount:         cmd.Amount,
		InitialCredits: cmd.InitialCredits,
		Lot:            cmd.Lot,
		Lots:           cmd.Lots,
	}
	switch cmd.Type {
	case coordinator.CmdSetTeamName:
		req.TeamName = cmd.Value
	case coordinator.CmdSetPicture:
		req.PictureRef = cmd.Value
	}
	return req
}
