package loyalty_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/creator-rewards/loyalty"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to loyalty.RedemptionStatus
		want     bool
	}{
		{loyalty.RedemptionClaimable, loyalty.RedemptionClaimed, true},
		{loyalty.RedemptionClaimed, loyalty.RedemptionFulfilled, true},
		{loyalty.RedemptionClaimed, loyalty.RedemptionConcluded, true},
		{loyalty.RedemptionFulfilled, loyalty.RedemptionConcluded, true},
		{loyalty.RedemptionClaimed, loyalty.RedemptionRejected, true},
		{loyalty.RedemptionFulfilled, loyalty.RedemptionClaimed, false},
		{loyalty.RedemptionClaimed, loyalty.RedemptionClaimed, false},
		{loyalty.RedemptionConcluded, loyalty.RedemptionRejected, false},
		{loyalty.RedemptionRejected, loyalty.RedemptionClaimed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, loyalty.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestRedemption_Advance(t *testing.T) {
	// GIVEN: A claimed redemption
	at := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	r := loyalty.Redemption{ID: "red-1", Status: loyalty.RedemptionClaimed}

	// WHEN: It concludes without an explicit fulfillment
	require.NoError(t, r.Advance(loyalty.RedemptionConcluded, at))

	// THEN: Both timestamps are stamped and it is terminal
	assert.Equal(t, loyalty.RedemptionConcluded, r.Status)
	require.NotNil(t, r.FulfilledAt)
	require.NotNil(t, r.ConcludedAt)
	assert.Equal(t, at, *r.ConcludedAt)
	assert.Equal(t, at, r.UpdatedAt)
	assert.False(t, r.IsActive())

	err := r.Advance(loyalty.RedemptionRejected, at.Add(time.Hour))
	assert.ErrorIs(t, err, loyalty.ErrInvalidTransition)
	assert.ErrorIs(t, err, loyalty.ErrConflict)
	assert.Equal(t, loyalty.CodeInvalidTransition, loyalty.CodeOf(err))
	assert.Nil(t, r.RejectedAt, "failed transition changes nothing")
}

func TestRedemption_Reject(t *testing.T) {
	at := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	r := loyalty.Redemption{ID: "red-1", Status: loyalty.RedemptionFulfilled}

	require.NoError(t, r.Advance(loyalty.RedemptionRejected, at))

	assert.Equal(t, loyalty.RedemptionRejected, r.Status)
	require.NotNil(t, r.RejectedAt)
	assert.True(t, r.Status.IsTerminal())
}

func TestRaffleParticipation_DrawOnce(t *testing.T) {
	at := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	p := loyalty.RaffleParticipation{ID: "e1"}
	require.True(t, p.IsPending())

	require.NoError(t, p.Draw(false, at))
	assert.False(t, p.IsPending())
	assert.False(t, *p.IsWinner)

	assert.ErrorIs(t, p.Draw(true, at), loyalty.ErrWinnerAlreadySelected)
	assert.False(t, *p.IsWinner, "the draw never changes")
}
