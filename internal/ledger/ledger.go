// Package ledger records attributed calls and tracks them to an outcome.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"

	"github.com/irfndi/oracle-alpha-go/internal/models"
)

var (
	ErrCallNotFound   = errors.New("call not found")
	ErrInvalidCall    = errors.New("invalid call")
	ErrInvalidOutcome = errors.New("outcome must be WIN or LOSS")
	ErrCallFinal      = errors.New("call has expired")
)

// NewCall is the input of RecordCall.
type NewCall struct {
	Handle    string
	Kind      models.EntityKind
	TokenID   string
	Symbol    string
	SignalID  string
	Price     decimal.Decimal
	MarketCap decimal.Decimal
	CalledAt  time.Time
}

// Ledger owns every call and the entity index over them.
type Ledger struct {
	mu       sync.RWMutex
	calls    map[string]*models.Call
	byHandle map[string][]string
	kinds    map[string]models.EntityKind
	bySignal map[string][]string
	versions map[string]uint64
	seq      uint64
	policy   StatusPolicy
	now      func() time.Time
	logger   *logrus.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithPolicy overrides the status policy.
func WithPolicy(p StatusPolicy) Option {
	return func(l *Ledger) {
		l.policy = p
	}
}

// New creates an empty ledger.
func New(logger *logrus.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = logrus.New()
	}
	l := &Ledger{
		policy: DefaultStatusPolicy(),
		now:    time.Now,
		logger: logger,
	}
	l.reset()
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) reset() {
	l.calls = make(map[string]*models.Call)
	l.byHandle = make(map[string][]string)
	l.kinds = make(map[string]models.EntityKind)
	l.bySignal = make(map[string][]string)
	l.versions = make(map[string]uint64)
}

// NormalizeHandle case-folds a handle and strips a leading '@'.
func NormalizeHandle(handle string) string {
	h := strings.TrimPrefix(strings.TrimSpace(handle), "@")
	return cases.Fold().String(h)
}

// Policy returns the status policy in use.
func (l *Ledger) Policy() StatusPolicy {
	return l.policy
}

// RecordCall creates a call for an entity. When the entity already holds an
// OPEN call on the same token inside the duplicate window, that call is
// returned and created is false.
func (l *Ledger) RecordCall(in NewCall) (call *models.Call, created bool, err error) {
	handle := NormalizeHandle(in.Handle)
	if handle == "" || in.TokenID == "" {
		return nil, false, fmt.Errorf("%w: handle and token are required", ErrInvalidCall)
	}
	if in.Price.IsNegative() {
		return nil, false, fmt.Errorf("%w: negative price", ErrInvalidCall)
	}
	kind := in.Kind
	if kind == "" {
		kind = models.EntityKindKOL
	}

	now := l.now()
	calledAt := in.CalledAt
	if calledAt.IsZero() {
		calledAt = now
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing := l.findOpenDuplicate(handle, in.TokenID, calledAt); existing != nil {
		if in.SignalID != "" && existing.SignalID == "" {
			existing.SignalID = in.SignalID
			l.bySignal[in.SignalID] = append(l.bySignal[in.SignalID], existing.ID)
		}
		return existing.Clone(), false, nil
	}

	c := &models.Call{
		ID:               uuid.NewString(),
		Handle:           handle,
		Kind:             kind,
		TokenID:          in.TokenID,
		Symbol:           in.Symbol,
		SignalID:         in.SignalID,
		CalledAt:         calledAt,
		UpdatedAt:        now,
		EntryPrice:       in.Price,
		EntryMarketCap:   in.MarketCap,
		CurrentPrice:     in.Price,
		CurrentMarketCap: in.MarketCap,
		ATHPrice:         in.Price,
		ATHAt:            calledAt,
		Status:           models.CallStatusOpen,
	}
	l.policy.recompute(c)

	l.calls[c.ID] = c
	l.byHandle[handle] = append(l.byHandle[handle], c.ID)
	if _, ok := l.kinds[handle]; !ok {
		l.kinds[handle] = kind
	}
	if in.SignalID != "" {
		l.bySignal[in.SignalID] = append(l.bySignal[in.SignalID], c.ID)
	}
	l.touch(handle)

	l.logger.WithFields(logrus.Fields{
		"call_id": c.ID,
		"handle":  handle,
		"kind":    kind,
		"token":   c.TokenID,
		"price":   c.EntryPrice.String(),
	}).Debug("Recorded call")

	return c.Clone(), true, nil
}

func (l *Ledger) findOpenDuplicate(handle, tokenID string, at time.Time) *models.Call {
	window := l.policy.DuplicateCallWindow
	if window <= 0 {
		return nil
	}
	for _, id := range l.byHandle[handle] {
		c := l.calls[id]
		if c.TokenID != tokenID || c.Status != models.CallStatusOpen {
			continue
		}
		if d := at.Sub(c.CalledAt); d >= 0 && d < window {
			return c
		}
	}
	return nil
}

// UpdateCallPrice applies a refreshed price to a call. Final calls are
// returned unchanged.
func (l *Ledger) UpdateCallPrice(id string, price, marketCap decimal.Decimal) (*models.Call, error) {
	if price.IsNegative() {
		return nil, fmt.Errorf("%w: negative price", ErrInvalidCall)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.calls[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCallNotFound, id)
	}
	if l.policy.IsFinal(c) {
		return c.Clone(), nil
	}

	previous := c.Status
	l.policy.applyPrice(c, price, marketCap, l.now())
	l.touch(c.Handle)

	if previous != c.Status {
		l.logger.WithFields(logrus.Fields{
			"call_id":     c.ID,
			"handle":      c.Handle,
			"token":       c.TokenID,
			"from":        previous,
			"to":          c.Status,
			"current_roi": c.CurrentROI,
		}).Info("Call status changed")
	}

	return c.Clone(), nil
}

// SetOutcome settles a call explicitly. A settled call keeps its status
// across later refreshes. EXPIRED is terminal: an expired call is left
// untouched and ErrCallFinal is returned.
func (l *Ledger) SetOutcome(id string, status models.CallStatus, exitPrice *decimal.Decimal) (*models.Call, error) {
	if !status.IsOutcome() {
		return nil, ErrInvalidOutcome
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.calls[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCallNotFound, id)
	}
	if c.Status == models.CallStatusExpired {
		return c.Clone(), fmt.Errorf("%w: %s", ErrCallFinal, id)
	}
	if exitPrice != nil {
		l.policy.applyPrice(c, *exitPrice, c.CurrentMarketCap, l.now())
	}
	c.Status = status
	c.Settled = true
	l.touch(c.Handle)

	return c.Clone(), nil
}

// Get returns a copy of a call.
func (l *Ledger) Get(id string) (*models.Call, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.calls[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// CallsFor returns an entity's calls, most recent first.
func (l *Ledger) CallsFor(handle string) []*models.Call {
	handle = NormalizeHandle(handle)

	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := l.byHandle[handle]
	out := make([]*models.Call, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.calls[id].Clone())
	}
	sortRecentFirst(out)
	return out
}

// History returns at most limit of an entity's most recent calls. A
// non-positive limit returns all of them.
func (l *Ledger) History(handle string, limit int) []*models.Call {
	calls := l.CallsFor(handle)
	if limit > 0 && len(calls) > limit {
		calls = calls[:limit]
	}
	return calls
}

// CallsForSignal returns the calls linked to a signal id.
func (l *Ledger) CallsForSignal(signalID string) []*models.Call {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := l.bySignal[signalID]
	out := make([]*models.Call, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.calls[id].Clone())
	}
	return out
}

// Handles returns the known entity handles of a kind, or of every kind when
// kind is empty.
func (l *Ledger) Handles(kind models.EntityKind) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.byHandle))
	for handle := range l.byHandle {
		if kind == "" || l.kinds[handle] == kind {
			out = append(out, handle)
		}
	}
	sort.Strings(out)
	return out
}

// Kind returns the entity kind of a handle.
func (l *Ledger) Kind(handle string) (models.EntityKind, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	kind, ok := l.kinds[NormalizeHandle(handle)]
	return kind, ok
}

// Version returns a counter that changes on every write touching the handle.
func (l *Ledger) Version(handle string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.versions[NormalizeHandle(handle)]
}

// PendingRefresh returns the non-final calls last updated at least minAge ago.
func (l *Ledger) PendingRefresh(minAge time.Duration) []*models.Call {
	now := l.now()

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*models.Call
	for _, c := range l.calls {
		if l.policy.IsFinal(c) {
			continue
		}
		if now.Sub(c.UpdatedAt) < minAge {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out
}

// Len returns the number of calls.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.calls)
}

// Snapshot returns a copy of every call, oldest first.
func (l *Ledger) Snapshot() []*models.Call {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*models.Call, 0, len(l.calls))
	for _, c := range l.calls {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CalledAt.Before(out[j].CalledAt) })
	return out
}

// Restore replaces the ledger contents with the given calls.
func (l *Ledger) Restore(calls []*models.Call) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reset()
	for _, in := range calls {
		c := in.Clone()
		c.Handle = NormalizeHandle(c.Handle)
		if c.Kind == "" {
			c.Kind = models.EntityKindKOL
		}
		l.calls[c.ID] = c
		l.byHandle[c.Handle] = append(l.byHandle[c.Handle], c.ID)
		if _, ok := l.kinds[c.Handle]; !ok {
			l.kinds[c.Handle] = c.Kind
		}
		if c.SignalID != "" {
			l.bySignal[c.SignalID] = append(l.bySignal[c.SignalID], c.ID)
		}
		l.touch(c.Handle)
	}
}

// Clear drops all calls.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
}

// touch bumps the handle version. Versions come from one sequence so they
// never repeat across Clear or Restore.
func (l *Ledger) touch(handle string) {
	l.seq++
	l.versions[handle] = l.seq
}

func sortRecentFirst(calls []*models.Call) {
	sort.SliceStable(calls, func(i, j int) bool {
		return calls[i].CalledAt.After(calls[j].CalledAt)
	})
}
