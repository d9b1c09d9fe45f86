package loyalty

import (
	"fmt"
	"time"
)

// =============================================================================
// REDEMPTION TRANSITIONS
// =============================================================================

// TransitionError reports a move the state machine does not allow.
type TransitionError struct {
	ID   RedemptionID
	From RedemptionStatus
	To   RedemptionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("redemption %s cannot move from %s to %s", e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() []error { return []error{ErrInvalidTransition, ErrConflict} }

var redemptionRank = map[RedemptionStatus]int{
	RedemptionClaimable: 0,
	RedemptionClaimed:   1,
	RedemptionFulfilled: 2,
	RedemptionConcluded: 3,
}

// CanTransition reports whether a redemption may move from one status to another.
// Forward moves along claimable, claimed, fulfilled, concluded are allowed,
// as is rejection from any state before concluded.
func CanTransition(from, to RedemptionStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == RedemptionRejected {
		return true
	}
	f, okFrom := redemptionRank[from]
	t, okTo := redemptionRank[to]
	return okFrom && okTo && t > f
}

// Advance moves the redemption to status `to`, stamping the matching timestamp.
func (r *Redemption) Advance(to RedemptionStatus, at time.Time) error {
	if !CanTransition(r.Status, to) {
		return &TransitionError{ID: r.ID, From: r.Status, To: to}
	}
	ts := at
	switch to {
	case RedemptionClaimed:
		r.ClaimedAt = &ts
	case RedemptionFulfilled:
		r.FulfilledAt = &ts
	case RedemptionConcluded:
		if r.FulfilledAt == nil {
			r.FulfilledAt = &ts
		}
		r.ConcludedAt = &ts
	case RedemptionRejected:
		r.RejectedAt = &ts
	}
	r.Status = to
	r.UpdatedAt = at
	return nil
}

// =============================================================================
// RAFFLE DRAW
// =============================================================================

// Draw records the winner flag on a pending participation.
func (p *RaffleParticipation) Draw(won bool, at time.Time) error {
	if !p.IsPending() {
		return ErrWinnerAlreadySelected
	}
	ts := at
	p.IsWinner = &won
	p.WinnerSelectedAt = &ts
	return nil
}
