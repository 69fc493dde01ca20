package engine

// TimingProfile holds the phase durations in seconds.
type TimingProfile struct {
	NewLot   int `yaml:"new_lot" json:"newLot"`
	BidReset int `yaml:"bid_reset" json:"bidReset"`
	Dwell    int `yaml:"dwell" json:"dwell"`
}

var (
	// StandardProfile is used for real runs.
	StandardProfile = TimingProfile{NewLot: 10, BidReset: 5, Dwell: 5}
	// RehearsalProfile compresses every phase for a dry run.
	RehearsalProfile = TimingProfile{NewLot: 3, BidReset: 2, Dwell: 2}
)

const (
	// AdminID is the administrator participant present after construction
	// and after every reset. It is auto-ready on initialize.
	AdminID = "admin"

	adminName     = "Ceffo & Bolla Admin"
	adminTeamName = "Ceffo & Bolla"

	// DefaultCredits is given to participants created before initialize.
	DefaultCredits = 500
	// RehearsalCredits is the fixed balance for a rehearsal run.
	RehearsalCredits = 500
)

// valid fills non-positive durations from fallback.
func (p TimingProfile) valid(fallback TimingProfile) TimingProfile {
	if p.NewLot <= 0 {
		p.NewLot = fallback.NewLot
	}
	if p.BidReset <= 0 {
		p.BidReset = fallback.BidReset
	}
	if p.Dwell <= 0 {
		p.Dwell = fallback.Dwell
	}
	return p
}
