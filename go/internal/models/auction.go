package models

// AuctionStatus defines the phase of the auction state machine.
type AuctionStatus string

const (
	AuctionStatusSetup   AuctionStatus = "SETUP"
	AuctionStatusReady   AuctionStatus = "READY"
	AuctionStatusBidding AuctionStatus = "BIDDING"
	AuctionStatusPaused  AuctionStatus = "PAUSED"
	AuctionStatusSold    AuctionStatus = "SOLD"
	AuctionStatusEnded   AuctionStatus = "ENDED"
)

// Valid reports whether s is a known status.
func (s AuctionStatus) Valid() bool {
	switch s {
	case AuctionStatusSetup, AuctionStatusReady, AuctionStatusBidding,
		AuctionStatusPaused, AuctionStatusSold, AuctionStatusEnded:
		return true
	}
	return false
}

// Bid is the current leading offer on the open lot.
type Bid struct {
	ParticipantID string `json:"participantId"`
	Amount        int    `json:"amount"`
}

// SaleResult summarizes how a lot closed. ParticipantID and Amount are nil
// when the lot went unsold.
type SaleResult struct {
	LotID         string  `json:"lotId"`
	ParticipantID *string `json:"participantId"`
	Amount        *int    `json:"amount"`
}

// Sold reports whether the lot found a buyer.
func (r SaleResult) Sold() bool {
	return r.ParticipantID != nil
}
