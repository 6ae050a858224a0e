package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAndIncrementFreeLimit(t *testing.T) {
	m := NewManager(Options{FreeDailyLimit: 2})

	require.NoError(t, m.CheckAndIncrement("user-1", "free"))
	require.NoError(t, m.CheckAndIncrement("user-1", "free"))
	assert.ErrorIs(t, m.CheckAndIncrement("user-1", "free"), ErrExceeded)

	// Other users are unaffected.
	assert.NoError(t, m.CheckAndIncrement("user-2", "free"))
}

func TestCheckAndIncrementProUnlimited(t *testing.T) {
	m := NewManager(Options{FreeDailyLimit: 2})
	for i := 0; i < 50; i++ {
		require.NoError(t, m.CheckAndIncrement("user-1", "pro"))
	}
}

func TestCheckAndIncrementProWithLimit(t *testing.T) {
	m := NewManager(Options{FreeDailyLimit: 2, ProDailyLimit: 3})
	for i := 0; i < 3; i++ {
		require.NoError(t, m.CheckAndIncrement("user-1", "pro"))
	}
	assert.ErrorIs(t, m.CheckAndIncrement("user-1", "pro"), ErrExceeded)
}

func TestDailyResetAtMidnightUTC(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 50, 0, 0, time.UTC)
	m := NewManager(Options{FreeDailyLimit: 1, Now: func() time.Time { return now }})

	require.NoError(t, m.CheckAndIncrement("user-1", "free"))
	assert.ErrorIs(t, m.CheckAndIncrement("user-1", "free"), ErrExceeded)

	now = now.Add(20 * time.Minute)
	assert.NoError(t, m.CheckAndIncrement("user-1", "free"), "counter resets on the next UTC day")
}

func TestDeveloperBypass(t *testing.T) {
	m := NewManager(Options{FreeDailyLimit: 1})
	for i := 0; i < 10; i++ {
		require.NoError(t, m.CheckAndIncrement("dev-alice", "free"))
	}
	snap := m.Remaining("dev-alice", "free")
	assert.Equal(t, unlimitedSentinel, snap.Remaining)

	global := NewManager(Options{FreeDailyLimit: 1, Bypass: true})
	for i := 0; i < 10; i++ {
		require.NoError(t, global.CheckAndIncrement("ordinary-user", "free"))
	}
}

func TestRemainingSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(Options{FreeDailyLimit: 2, Now: func() time.Time { return now }})

	require.NoError(t, m.CheckAndIncrement("user-1", "free"))
	snap := m.Remaining("user-1", "free")
	assert.Equal(t, "free", snap.Plan)
	assert.Equal(t, 1, snap.Used)
	assert.Equal(t, 2, snap.Limit)
	assert.Equal(t, 1, snap.Remaining)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), snap.ResetAt)

	require.NoError(t, m.CheckAndIncrement("user-1", "free"))
	snap = m.Remaining("user-1", "free")
	assert.Zero(t, snap.Remaining)

	pro := m.Remaining("user-2", "pro")
	assert.Equal(t, unlimitedSentinel, pro.Remaining)
	assert.Zero(t, pro.Limit)
}

func TestFreePlanNeverDowngradesStoredPro(t *testing.T) {
	m := NewManager(Options{FreeDailyLimit: 1})
	m.MarkPro("user-1")
	for i := 0; i < 5; i++ {
		require.NoError(t, m.CheckAndIncrement("user-1", "free"))
	}
}

func TestMarkProUpgradesStoredPlan(t *testing.T) {
	m := NewManager(Options{FreeDailyLimit: 1})

	require.NoError(t, m.CheckAndIncrement("user-1", "free"))
	assert.ErrorIs(t, m.CheckAndIncrement("user-1", "free"), ErrExceeded)

	m.MarkPro("user-1")
	// Requests presenting the pro plan are now unmetered.
	assert.NoError(t, m.CheckAndIncrement("user-1", "pro"))

	// The upgrade sticks even when later requests omit the plan header.
	assert.NoError(t, m.CheckAndIncrement("user-1", "free"))
	snap := m.Remaining("user-1", "free")
	assert.Equal(t, "pro", snap.Plan)
	assert.Equal(t, unlimitedSentinel, snap.Remaining)
}
