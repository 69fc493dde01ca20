// Package sequencer owns the sale order of lots and the cursor into it.
package sequencer

import (
	"errors"
	"fmt"

	"github.com/mcdev12/fantasta/go/internal/models"
)

// ErrQueueSealed is returned when appending after the first advance.
var ErrQueueSealed = errors.New("queue is sealed once the auction has started")

// ErrInvalidQueue is returned by Restore for out-of-range queue or cursor values.
var ErrInvalidQueue = errors.New("invalid queue")

// Sequencer holds the ordered queue of lot indices and the cursor. The cursor
// is -1 before the first advance and only moves forward until Reset.
type Sequencer struct {
	queue  []int
	cursor int
}

// New creates an empty sequencer.
func New() *Sequencer {
	return &Sequencer{cursor: -1}
}

// Build replaces the queue with one entry per lot, in list order.
func (s *Sequencer) Build(lotCount int) error {
	if s.cursor >= 0 {
		return ErrQueueSealed
	}
	s.queue = make([]int, lotCount)
	for i := range s.queue {
		s.queue[i] = i
	}
	return nil
}

// Append adds a lot index at the end of the queue.
func (s *Sequencer) Append(lotIndex int) error {
	if s.cursor >= 0 {
		return ErrQueueSealed
	}
	s.queue = append(s.queue, lotIndex)
	return nil
}

// Advance moves to the next queued lot. ok is false when the queue is
// exhausted; the cursor is left unchanged in that case.
func (s *Sequencer) Advance() (cursor int, ok bool) {
	next := s.cursor + 1
	if next >= len(s.queue) {
		return s.cursor, false
	}
	s.cursor = next
	return s.cursor, true
}

// Current returns the lot at the cursor, or false before the first advance.
func (s *Sequencer) Current(lots []models.Lot) (models.Lot, bool) {
	if s.cursor < 0 || s.cursor >= len(s.queue) {
		return models.Lot{}, false
	}
	idx := s.queue[s.cursor]
	if idx < 0 || idx >= len(lots) {
		return models.Lot{}, false
	}
	return lots[idx], true
}

// Rewind puts the cursor back to -1 for a new run over the same queue.
func (s *Sequencer) Rewind() {
	s.cursor = -1
}

// Reset clears the queue and the cursor.
func (s *Sequencer) Reset() {
	s.queue = nil
	s.cursor = -1
}

// Restore replaces queue and cursor with values received from a snapshot.
func (s *Sequencer) Restore(queue []int, cursor int, lotCount int) error {
	for i, idx := range queue {
		if idx < 0 || idx >= lotCount {
			return fmt.Errorf("%w: entry %d points at lot %d of %d", ErrInvalidQueue, i, idx, lotCount)
		}
	}
	if cursor < -1 || cursor >= len(queue) {
		return fmt.Errorf("%w: cursor %d outside queue of %d", ErrInvalidQueue, cursor, len(queue))
	}
	s.queue = append([]int(nil), queue...)
	s.cursor = cursor
	return nil
}

// Cursor returns the current position (-1 before the first lot).
func (s *Sequencer) Cursor() int {
	return s.cursor
}

// Queue returns a copy of the queue.
func (s *Sequencer) Queue() []int {
	return append([]int{}, s.queue...)
}

// Len returns the queue length.
func (s *Sequencer) Len() int {
	return len(s.queue)
}
