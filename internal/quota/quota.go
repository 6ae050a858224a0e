package quota

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"iconforge/internal/infra"
)

// unlimitedSentinel is the remaining count reported for unmetered callers.
const unlimitedSentinel = 999999

// ErrExceeded indicates the caller has used up today's allowance.
var ErrExceeded = errors.New("quota: daily limit exceeded")

// Options configures the quota manager.
type Options struct {
	// FreeDailyLimit is the per-day allowance for free-plan callers.
	FreeDailyLimit int
	// ProDailyLimit caps pro-plan callers; zero means unlimited.
	ProDailyLimit int
	// Bypass disables enforcement globally for development environments.
	Bypass bool
	Logger *infra.Logger
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Snapshot is the caller-facing view of today's allowance.
type Snapshot struct {
	Plan      string
	Used      int
	Limit     int // zero means unlimited
	Remaining int
	ResetAt   time.Time
}

type record struct {
	count int
	day   string
	plan  string
}

// Manager tracks per-user daily usage in memory. Counters reset at midnight
// UTC by comparing the stored day string on each touch.
type Manager struct {
	mu      sync.Mutex
	records map[string]*record

	freeLimit int
	proLimit  int
	bypass    bool
	logger    *infra.Logger
	now       func() time.Time
}

// NewManager constructs a quota manager with the given limits.
func NewManager(opts Options) *Manager {
	if opts.FreeDailyLimit <= 0 {
		opts.FreeDailyLimit = 2
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		records:   make(map[string]*record),
		freeLimit: opts.FreeDailyLimit,
		proLimit:  opts.ProDailyLimit,
		bypass:    opts.Bypass,
		logger:    logger,
		now:       now,
	}
}

// Bypassed reports whether enforcement is skipped for this caller: either
// the global development switch or a developer user id.
func (m *Manager) Bypassed(userID string) bool {
	return m.bypass || strings.HasPrefix(userID, "dev-")
}

// CheckAndIncrement consumes one unit of today's allowance. It returns
// ErrExceeded without counting when the caller is already at the limit.
// Bypassed callers are never counted or rejected.
func (m *Manager) CheckAndIncrement(userID, plan string) error {
	if m.Bypassed(userID) {
		m.logger.Debug().Str("user_id", userID).Msg("quota: developer bypass active")
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.touch(userID, plan)
	if limit := m.limitFor(rec.plan); limit > 0 && rec.count >= limit {
		return ErrExceeded
	}
	rec.count++
	return nil
}

// MarkPro upgrades the caller's stored plan after a verified purchase.
func (m *Manager) MarkPro(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.touch(userID, "pro")
	rec.plan = "pro"
}

// Remaining reports today's allowance for the caller without consuming any.
func (m *Manager) Remaining(userID, plan string) Snapshot {
	snap := Snapshot{Plan: plan, ResetAt: m.nextReset()}
	if m.Bypassed(userID) {
		snap.Remaining = unlimitedSentinel
		return snap
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.touch(userID, plan)
	snap.Plan = rec.plan
	snap.Used = rec.count
	snap.Limit = m.limitFor(rec.plan)
	if snap.Limit == 0 {
		snap.Remaining = unlimitedSentinel
		return snap
	}
	snap.Remaining = snap.Limit - rec.count
	if snap.Remaining < 0 {
		snap.Remaining = 0
	}
	return snap
}

// touch returns the caller's record for today, resetting stale counters.
// A presented pro plan upgrades the stored plan; a free plan never
// downgrades one, so a verified purchase survives requests that omit the
// plan header. Callers must hold the mutex.
func (m *Manager) touch(userID, plan string) *record {
	today := m.now().UTC().Format("2006-01-02")
	rec, ok := m.records[userID]
	if !ok || rec.day != today {
		rec = &record{day: today, plan: plan}
		m.records[userID] = rec
		return rec
	}
	if plan == "pro" {
		rec.plan = plan
	}
	return rec
}

func (m *Manager) limitFor(plan string) int {
	if strings.EqualFold(plan, "free") {
		return m.freeLimit
	}
	return m.proLimit
}

func (m *Manager) nextReset() time.Time {
	now := m.now().UTC()
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, time.UTC)
}
