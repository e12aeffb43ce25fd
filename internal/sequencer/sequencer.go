// Package sequencer serialises voucher numbering per account, point of sale and
// voucher type so that read-last-then-submit-next never interleaves.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/facturia/facturia/internal/shared"
)

// ErrReleased is returned when a reservation is used after Release.
var ErrReleased = errors.New("sequencer: reservation already released")

// Key identifies one voucher numbering sequence.
type Key struct {
	AccountID   string
	PointOfSale int
	VoucherType int
}

// String returns the lock name for the sequence.
func (k Key) String() string {
	return shared.VoucherSequenceLockKey(k.AccountID, k.PointOfSale, k.VoucherType)
}

// LastNumberSource reports the last voucher number the authority accepted.
type LastNumberSource interface {
	LastVoucher(ctx context.Context, pointOfSale, voucherType int) (int64, error)
}

// Sequencer hands out exclusive reservations on voucher sequences.
type Sequencer struct {
	locker  Locker
	metrics *Metrics
	logger  zerolog.Logger
}

// New constructs a sequencer over the given locker. metrics may be nil.
func New(locker Locker, metrics *Metrics, logger zerolog.Logger) *Sequencer {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &Sequencer{
		locker:  locker,
		metrics: metrics,
		logger:  logger.With().Str("component", "sequencer").Logger(),
	}
}

// Reserve waits for exclusive ownership of key. Reservations for the same key
// are granted one at a time in request order. The caller must Release the
// reservation once the submission has finished, whatever the outcome.
func (s *Sequencer) Reserve(ctx context.Context, key Key) (*Reservation, error) {
	start := time.Now()
	unlock, err := s.locker.Lock(ctx, key.String())
	waited := time.Since(start)
	s.metrics.observeWait(waited, err)
	if err != nil {
		return nil, fmt.Errorf("sequencer: reserve %s: %w", key, err)
	}
	s.logger.Debug().Str("sequence", key.String()).Dur("waited", waited).Msg("sequence slot acquired")
	s.metrics.holding(1)
	return &Reservation{key: key, unlock: unlock, acquired: time.Now(), seq: s}, nil
}

// Reservation is exclusive ownership of one voucher sequence.
type Reservation struct {
	key      Key
	unlock   func()
	acquired time.Time
	seq      *Sequencer

	mu       sync.Mutex
	released bool
	number   int64
}

// Key returns the reserved sequence.
func (r *Reservation) Key() Key {
	return r.key
}

// NextVoucherNumber reads the last accepted number from src and returns the
// number the next submission must carry.
func (r *Reservation) NextVoucherNumber(ctx context.Context, src LastNumberSource) (int64, error) {
	r.mu.Lock()
	released := r.released
	r.mu.Unlock()
	if released {
		return 0, ErrReleased
	}
	last, err := src.LastVoucher(ctx, r.key.PointOfSale, r.key.VoucherType)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	r.number = last + 1
	r.mu.Unlock()
	return last + 1, nil
}

// Number returns the number computed by the last NextVoucherNumber call, or
// zero when none was computed.
func (r *Reservation) Number() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.number
}

// Release gives the sequence to the next waiter. It is idempotent.
func (r *Reservation) Release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	r.mu.Unlock()

	r.unlock()
	r.seq.metrics.holding(-1)
	r.seq.metrics.observeHeld(time.Since(r.acquired))
	r.seq.logger.Debug().Str("sequence", r.key.String()).Msg("sequence slot released")
}
