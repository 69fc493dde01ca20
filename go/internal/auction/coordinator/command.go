package coordinator

import (
	"fmt"

	"github.com/mcdev12/fantasta/go/internal/auction/engine"
	"github.com/mcdev12/fantasta/go/internal/models"
)

// CommandType names an engine command.
type CommandType string

const (
	CmdSetLots        CommandType = "SetLots"
	CmdAddLot         CommandType = "AddLot"
	CmdAddParticipant CommandType = "AddParticipant"
	CmdSetReady       CommandType = "SetReady"
	CmdSetTeamName    CommandType = "SetTeamName"
	CmdSetPicture     CommandType = "SetPicture"
	CmdInitialize     CommandType = "Initialize"
	CmdStart          CommandType = "Start"
	CmdPause          CommandType = "Pause"
	CmdResume         CommandType = "Resume"
	CmdBid            CommandType = "PlaceBid"
	CmdStartRehearsal CommandType = "StartRehearsal"
	CmdStopRehearsal  CommandType = "StopRehearsal"
	CmdReset          CommandType = "Reset"
)

// Command is a serializable engine command. Only the fields relevant to Type
// are read. Followers forward commands to the authority in this form.
type Command struct {
	Type           CommandType  `json:"type"`
	ParticipantID  string       `json:"participantId,omitempty"`
	Name           string       `json:"name,omitempty"`
	Value          string       `json:"value,omitempty"`
	Amount         int          `json:"amount,omitempty"`
	InitialCredits int          `json:"initialCredits,omitempty"`
	Lot            *models.Lot  `json:"lot,omitempty"`
	Lots           []models.Lot `json:"lots,omitempty"`
}

// Result carries what a command created, if anything, and the version of the
// state it produced.
type Result struct {
	Version     uint64              `json:"version"`
	Lot         *models.Lot         `json:"lot,omitempty"`
	Participant *models.Participant `json:"participant,omitempty"`
}

// Apply runs cmd against e.
func Apply(e *engine.Engine, cmd Command) (Result, error) {
	var res Result
	switch cmd.Type {
	case CmdSetLots:
		return res, e.SetLots(cmd.Lots)
	case CmdAddLot:
		if cmd.Lot == nil {
			return res, fmt.Errorf("%w: lot is required", engine.ErrInvalidLot)
		}
		lot, err := e.AddLot(*cmd.Lot)
		if err != nil {
			return res, err
		}
		res.Lot = &lot
		return res, nil
	case CmdAddParticipant:
		p, err := e.AddParticipant(cmd.Name)
		if err != nil {
			return res, err
		}
		res.Participant = &p
		return res, nil
	case CmdSetReady:
		return res, e.SetReady(cmd.ParticipantID)
	case CmdSetTeamName:
		return res, e.SetTeamName(cmd.ParticipantID, cmd.Value)
	case CmdSetPicture:
		return res, e.SetPicture(cmd.ParticipantID, cmd.Value)
	case CmdInitialize:
		return res, e.Initialize(cmd.InitialCredits)
	case CmdStart:
		return res, e.Start()
	case CmdPause:
		return res, e.Pause()
	case CmdResume:
		return res, e.Resume()
	case CmdBid:
		return res, e.Bid(cmd.ParticipantID, cmd.Amount)
	case CmdStartRehearsal:
		return res, e.StartRehearsal()
	case CmdStopRehearsal:
		return res, e.StopRehearsal()
	case CmdReset:
		return res, e.Reset()
	default:
		return res, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
}
