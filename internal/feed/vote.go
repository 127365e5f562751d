package feed

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/lurkd/lurkd/internal/domain"
	"github.com/lurkd/lurkd/internal/domain/listing"
)

var (
	// ErrInvalidID signals a vote target that is not a comment or post
	// fullname.
	ErrInvalidID = errors.New("feed: invalid thing id")
	// ErrInvalidDirection signals a direction outside {-1, 0, 1}.
	ErrInvalidDirection = errors.New("feed: invalid vote direction")
	// ErrUnknownThing signals a vote on an item the coordinator has no
	// baseline for.
	ErrUnknownThing = errors.New("feed: unknown thing")
)

// VoteState is the observable per-item state: the caller's current vote and
// the optimistically adjusted display score.
type VoteState struct {
	Direction int
	Score     int
}

// VoteSender issues the mutating call. The gateway proxy satisfies this via
// a small adapter; tests plug in fakes. Authenticated is checked before any
// local state is touched, so an anonymous vote never applies optimistically.
type VoteSender interface {
	SendVote(ctx context.Context, id string, direction int) error
	Authenticated() bool
}

// Voter applies votes optimistically and reverts on failure. State changes
// reach the UI layer through the observer callback; a revert is a single
// transition, never two.
type Voter struct {
	sender   VoteSender
	logger   *zap.Logger
	observer func(id string, state VoteState)

	mu     sync.Mutex
	states map[string]VoteState
}

// NewVoter builds a coordinator. observer may be nil.
func NewVoter(sender VoteSender, observer func(id string, state VoteState), logger *zap.Logger) *Voter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Voter{
		sender:   sender,
		logger:   logger,
		observer: observer,
		states:   make(map[string]VoteState),
	}
}

// Track seeds the baseline for one item, as decoded from a listing.
func (v *Voter) Track(id string, direction, score int) {
	v.mu.Lock()
	v.states[id] = VoteState{Direction: direction, Score: score}
	v.mu.Unlock()
}

// State returns the current (possibly optimistic) state for id.
func (v *Voter) State(id string) (VoteState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	state, ok := v.states[id]
	return state, ok
}

// Vote applies toggle semantics optimistically and issues the upstream call.
// Clicking the active direction again clears the vote. On failure the
// pre-vote snapshot is restored atomically.
func (v *Voter) Vote(ctx context.Context, id string, direction int) error {
	if !listing.ValidFullname(id) {
		return ErrInvalidID
	}
	if direction < -1 || direction > 1 {
		return ErrInvalidDirection
	}
	if !v.sender.Authenticated() {
		return domain.ErrUnauthenticated
	}

	// Read the latest local state as the baseline, inside the lock, so rapid
	// repeated votes produce sequential deltas rather than racing on a stale
	// snapshot.
	v.mu.Lock()
	snapshot, ok := v.states[id]
	if !ok {
		v.mu.Unlock()
		return ErrUnknownThing
	}
	next := direction
	if snapshot.Direction == direction {
		next = 0
	}
	applied := VoteState{
		Direction: next,
		Score:     snapshot.Score + (next - snapshot.Direction),
	}
	v.states[id] = applied
	v.mu.Unlock()

	v.notify(id, applied)

	if err := v.sender.SendVote(ctx, id, next); err != nil {
		v.mu.Lock()
		v.states[id] = snapshot
		v.mu.Unlock()

		v.logger.Warn("vote failed, reverted",
			zap.String("thing", id),
			zap.Int("direction", next))
		v.notify(id, snapshot)
		return err
	}
	return nil
}

func (v *Voter) notify(id string, state VoteState) {
	if v.observer != nil {
		v.observer(id, state)
	}
}
