package engine

import (
	"errors"

	"github.com/mcdev12/fantasta/go/internal/auction/ledger"
)

// Rejections returned by engine commands. Bid rejections come from the ledger
// and are re-exported so callers only need this package.
var (
	ErrWrongPhase          = ledger.ErrWrongPhase
	ErrUnknownParticipant  = ledger.ErrUnknownParticipant
	ErrRoleCapReached      = ledger.ErrRoleCapReached
	ErrBidTooLow           = ledger.ErrBidTooLow
	ErrInsufficientCredits = ledger.ErrInsufficientCredits

	ErrNotAllReady        = errors.New("not every participant is ready")
	ErrInvalidLot         = errors.New("invalid lot")
	ErrInvalidParticipant = errors.New("invalid participant")
	ErrInvalidCredits     = errors.New("initial credits must not be negative")
	ErrInvalidSnapshot    = errors.New("invalid snapshot")
)

// IsRejection reports whether err is an expected command rejection rather
// than a boundary input error.
func IsRejection(err error) bool {
	switch {
	case errors.Is(err, ErrWrongPhase),
		errors.Is(err, ErrUnknownParticipant),
		errors.Is(err, ErrRoleCapReached),
		errors.Is(err, ErrBidTooLow),
		errors.Is(err, ErrInsufficientCredits),
		errors.Is(err, ErrNotAllReady):
		return true
	}
	return false
}

// rejection codes are stable strings for clients that cannot compare errors.
var rejectionCodes = []struct {
	code string
	err  error
}{
	{"wrong_phase", ErrWrongPhase},
	{"unknown_participant", ErrUnknownParticipant},
	{"role_cap_reached", ErrRoleCapReached},
	{"bid_too_low", ErrBidTooLow},
	{"insufficient_credits", ErrInsufficientCredits},
	{"not_all_ready", ErrNotAllReady},
}

// RejectionCode returns the stable code of a rejection, or "" for other errors.
func RejectionCode(err error) string {
	for _, rc := range rejectionCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return ""
}

// RejectionFromCode maps a code produced by RejectionCode back to its sentinel.
func RejectionFromCode(code string) (error, bool) {
	for _, rc := range rejectionCodes {
		if rc.code == code {
			return rc.err, true
		}
	}
	return nil, false
}
