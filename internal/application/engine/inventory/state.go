package inventory

// state.go - inventory state owned by a single goroutine.
//
// Fill listener, reconciler, control loop and executor never touch the
// fields directly: every read or write is a command sent over one channel
// and executed in order by the owner goroutine. Readers get a copy that may
// already be stale when they act on it; the next reconciliation corrects it.

import (
	"context"
	"errors"
	"sync"

	"github.com/alejandrodnm/skewmm/internal/domain"
)

// ErrClosed is returned for commands sent after Close.
var ErrClosed = errors.New("inventory: state closed")

// Reconciliation is an authoritative view fetched from the venue.
type Reconciliation struct {
	// Position is nil when the venue reports no open position (flat).
	Position *domain.Position

	// BalanceFetched is false when the balance call failed; PnL fields are
	// then left untouched.
	BalanceFetched bool

	// Equity is nil when the account holds no balance in the currency.
	Equity *float64
}

type record struct {
	inventory     float64
	unrealizedPnL float64
	cumulativePnL float64
	initialEquity *float64
	fills         int
	reconciles    int
}

func (r *record) snapshot() domain.InventorySnapshot {
	s := domain.InventorySnapshot{
		Inventory:     r.inventory,
		UnrealizedPnL: r.unrealizedPnL,
		CumulativePnL: r.cumulativePnL,
		Fills:         r.fills,
		Reconciles:    r.reconciles,
	}
	if r.initialEquity != nil {
		eq := *r.initialEquity
		s.InitialEquity = &eq
	}
	return s
}

type command struct {
	apply func(*record)
	done  chan struct{}
}

// State is the owned inventory container.
type State struct {
	cmds      chan command
	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New starts the owner goroutine. Inventory starts at zero until the first
// reconciliation.
func New() *State {
	s := &State{
		cmds:    make(chan command),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *State) loop() {
	defer close(s.stopped)
	var r record
	for {
		select {
		case cmd := <-s.cmds:
			cmd.apply(&r)
			close(cmd.done)
		case <-s.stop:
			return
		}
	}
}

// Close stops the owner goroutine. Safe to call more than once.
func (s *State) Close() {
	s.closeOnce.Do(func() { close(s.stop) })
	<-s.stopped
}

func (s *State) do(ctx context.Context, fn func(*record)) error {
	cmd := command{apply: fn, done: make(chan struct{})}
	select {
	case s.cmds <- cmd:
	case <-s.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot(ctx context.Context) (domain.InventorySnapshot, error) {
	var snap domain.InventorySnapshot
	err := s.do(ctx, func(r *record) { snap = r.snapshot() })
	return snap, err
}

// ApplyFill adds the signed fill amount to inventory and returns the result.
func (s *State) ApplyFill(ctx context.Context, fill domain.Fill) (float64, error) {
	var inv float64
	err := s.do(ctx, func(r *record) {
		r.inventory += fill.SignedAmount()
		r.fills++
		inv = r.inventory
	})
	return inv, err
}

// Reconcile overwrites inventory and PnL with the venue's view. There is no
// merge with fills applied since the last poll: the venue wins.
//
// Initial equity latches on the first known equity and never changes after
// that; cumulative PnL is recomputed as equity − initial equity each time.
func (s *State) Reconcile(ctx context.Context, rec Reconciliation) (domain.InventorySnapshot, error) {
	var snap domain.InventorySnapshot
	err := s.do(ctx, func(r *record) {
		if rec.Position != nil {
			r.inventory = rec.Position.Size
			r.unrealizedPnL = rec.Position.UnrealizedPnL
		} else {
			r.inventory = 0
			r.unrealizedPnL = 0
		}

		if rec.BalanceFetched {
			if rec.Equity != nil {
				if r.initialEquity == nil {
					eq := *rec.Equity
					r.initialEquity = &eq
				}
				r.cumulativePnL = *rec.Equity - *r.initialEquity
			} else {
				r.cumulativePnL = 0
			}
		}

		r.reconciles++
		snap = r.snapshot()
	})
	return snap, err
}
