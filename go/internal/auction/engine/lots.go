package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/mcdev12/fantasta/go/internal/models"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	nonSlug    = regexp.MustCompile(`[^a-z0-9]`)
)

// ParseCategory accepts P, D, C or A in any case, surrounding space ignored.
func ParseCategory(raw string) (models.Category, error) {
	c := models.Category(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: category %q is not one of P, D, C, A", ErrInvalidLot, raw)
	}
	return c, nil
}

// ValidateLot normalizes a lot received from outside the engine and rejects
// rows with an empty name or club, an unknown category or a non-positive base
// value.
func ValidateLot(lot models.Lot) (models.Lot, error) {
	lot.ID = strings.TrimSpace(lot.ID)
	lot.Name = strings.TrimSpace(lot.Name)
	lot.Group = strings.TrimSpace(lot.Group)

	if lot.Name == "" {
		return models.Lot{}, fmt.Errorf("%w: name is required", ErrInvalidLot)
	}
	if lot.Group == "" {
		return models.Lot{}, fmt.Errorf("%w: club is required for %q", ErrInvalidLot, lot.Name)
	}
	category, err := ParseCategory(string(lot.Category))
	if err != nil {
		return models.Lot{}, err
	}
	lot.Category = category
	if lot.BaseValue <= 0 {
		return models.Lot{}, fmt.Errorf("%w: base value %d for %q must be positive", ErrInvalidLot, lot.BaseValue, lot.Name)
	}
	return lot, nil
}

// NewLotID derives an id from the lot name, e.g. "Lautaro-Martinez-1b9d6bcd".
func NewLotID(name string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(name), "-") + "-" + shortID()
}

// NewParticipantID derives a URL-friendly id from a display name,
// e.g. "user-alice-1b9d6bcd".
func NewParticipantID(name string) string {
	slug := nonSlug.ReplaceAllString(strings.ToLower(name), "")
	return "user-" + slug + "-" + shortID()
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
