package models

// RosterEntry is a lot acquired by a participant together with the price paid.
type RosterEntry struct {
	LotID     string   `json:"lotId"`
	PricePaid int      `json:"pricePaid"`
	Category  Category `json:"-"`
}

// Participant represents a bidder in the auction.
type Participant struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Credits    int           `json:"credits"`
	Roster     []RosterEntry `json:"roster"`
	IsReady    bool          `json:"isReady"`
	TeamName   string        `json:"teamName"`
	PictureRef string        `json:"pictureRef"`
}

// CountByCategory returns how many roster entries belong to category c.
func (p *Participant) CountByCategory(c Category) int {
	n := 0
	for _, e := range p.Roster {
		if e.Category == c {
			n++
		}
	}
	return n
}

// ParticipantSet is an insertion-ordered collection of participants keyed by ID.
// Order only matters for stable display.
type ParticipantSet struct {
	order []string
	byID  map[string]*Participant
}

// NewParticipantSet creates an empty set.
func NewParticipantSet() *ParticipantSet {
	return &ParticipantSet{
		byID: make(map[string]*Participant),
	}
}

// Add inserts p, replacing any participant with the same ID in place.
func (s *ParticipantSet) Add(p Participant) {
	if _, exists := s.byID[p.ID]; !exists {
		s.order = append(s.order, p.ID)
	}
	cp := p
	cp.Roster = append([]RosterEntry(nil), p.Roster...)
	s.byID[p.ID] = &cp
}

// Get returns the participant with the given ID.
func (s *ParticipantSet) Get(id string) (*Participant, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// Len returns the number of participants.
func (s *ParticipantSet) Len() int {
	return len(s.order)
}

// Each calls fn for every participant in insertion order.
func (s *ParticipantSet) Each(fn func(p *Participant)) {
	for _, id := range s.order {
		fn(s.byID[id])
	}
}

// List returns copies of all participants in insertion order.
func (s *ParticipantSet) List() []Participant {
	out := make([]Participant, 0, len(s.order))
	s.Each(func(p *Participant) {
		cp := *p
		cp.Roster = append([]RosterEntry(nil), p.Roster...)
		out = append(out, cp)
	})
	return out
}

// AllReady reports whether every participant has set its readiness flag.
// An empty set is never ready.
func (s *ParticipantSet) AllReady() bool {
	if len(s.order) == 0 {
		return false
	}
	for _, p := range s.byID {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// ReadyCount returns the number of ready participants.
func (s *ParticipantSet) ReadyCount() int {
	n := 0
	for _, p := range s.byID {
		if p.IsReady {
			n++
		}
	}
	return n
}
