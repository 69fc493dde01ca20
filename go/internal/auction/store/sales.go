package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fantasta/go/internal/auction/events"
)

const insertSale = `INSERT INTO auction_sales
    (event_id, auction_id, lot_id, lot_name, participant_id, amount, rehearsal, closed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (event_id) DO NOTHING`

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Sale is one row of the sale history. ParticipantID and Amount are nil for
// unsold lots.
type Sale struct {
	EventID       string
	LotID         string
	LotName       string
	ParticipantID *string
	Amount        *int
	Rehearsal     bool
	ClosedAt      time.Time
}

// SalesLog appends lot outcomes to auction_sales. It implements
// coordinator.EventSink.
type SalesLog struct {
	db        Execer
	auctionID string
	queue     chan Sale
	disabled  atomic.Bool
	dropped   atomic.Int64
}

func NewSalesLog(db Execer, auctionID string, buffer int) *SalesLog {
	if buffer <= 0 {
		buffer = 128
	}
	return &SalesLog{
		db:        db,
		auctionID: auctionID,
		queue:     make(chan Sale, buffer),
	}
}

// Enqueue picks the sale outcomes out of evs. It never blocks; when the queue
// is full the sale is dropped and counted.
func (l *SalesLog) Enqueue(evs []events.Event) {
	if l.disabled.Load() {
		return
	}
	for _, ev := range evs {
		sale, ok, err := saleFromEvent(ev)
		if err != nil {
			log.Error().Err(err).Str("event_id", ev.ID).Msg("failed to decode sale event")
			continue
		}
		if !ok {
			continue
		}

		select {
		case l.queue <- sale:
		default:
			l.dropped.Add(1)
			log.Warn().Str("lot_id", sale.LotID).Msg("sales log queue full, dropping sale")
		}
	}
}

// Run writes queued sales until ctx is done.
func (l *SalesLog) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sale := <-l.queue:
			if l.disabled.Load() {
				continue
			}
			if err := l.insert(ctx, sale); err != nil {
				l.disabled.Store(true)
				log.Error().
					Err(err).
					Str("auction_id", l.auctionID).
					Str("lot_id", sale.LotID).
					Msg("sales log disabled")
			}
		}
	}
}

func (l *SalesLog) insert(ctx context.Context, s Sale) error {
	_, err := l.db.Exec(ctx, insertSale,
		s.EventID,
		l.auctionID,
		s.LotID,
		s.LotName,
		s.ParticipantID,
		s.Amount,
		s.Rehearsal,
		s.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sale: %w", err)
	}
	return nil
}

// Enabled is false once a write failed.
func (l *SalesLog) Enabled() bool {
	return !l.disabled.Load()
}

// Dropped counts sales lost to a full queue.
func (l *SalesLog) Dropped() int64 {
	return l.dropped.Load()
}

func saleFromEvent(ev events.Event) (Sale, bool, error) {
	if ev.Type != events.TypeLotSold && ev.Type != events.TypeLotUnsold {
		return Sale{}, false, nil
	}

	payload, err := events.ParsePayload(ev)
	if err != nil {
		return Sale{}, false, err
	}

	switch p := payload.(type) {
	case events.LotSoldPayload:
		buyer, amount := p.ParticipantID, p.Amount
		return Sale{
			EventID:       ev.ID,
			LotID:         p.LotID,
			LotName:       p.LotName,
			ParticipantID: &buyer,
			Amount:        &amount,
			Rehearsal:     p.Rehearsal,
			ClosedAt:      p.SoldAt,
		}, true, nil
	case events.LotUnsoldPayload:
		return Sale{
			EventID:   ev.ID,
			LotID:     p.LotID,
			LotName:   p.LotName,
			Rehearsal: p.Rehearsal,
			ClosedAt:  p.ClosedAt,
		}, true, nil
	}
	return Sale{}, false, nil
}
