package models

// Category is the roster role a lot fills.
type Category string

const (
	CategoryGoalkeeper Category = "P"
	CategoryDefender   Category = "D"
	CategoryMidfielder Category = "C"
	CategoryAttacker   Category = "A"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryGoalkeeper,
	CategoryDefender,
	CategoryMidfielder,
	CategoryAttacker,
}

// RoleCaps is the maximum number of lots of each category a roster may hold.
var RoleCaps = map[Category]int{
	CategoryGoalkeeper: 3,
	CategoryDefender:   8,
	CategoryMidfielder: 8,
	CategoryAttacker:   6,
}

// Valid reports whether c is one of the four roster categories.
func (c Category) Valid() bool {
	_, ok := RoleCaps[c]
	return ok
}

// Cap returns the roster cap for the category (0 for unknown categories).
func (c Category) Cap() int {
	return RoleCaps[c]
}

// Lot represents a player put up for auction.
type Lot struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Category  Category `json:"category"`
	Group     string   `json:"group"` // club
	BaseValue int      `json:"baseValue"`
}
