package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/shobdo/internal/domain/calendar"
	"github.com/okian/shobdo/internal/domain/model"
	"github.com/okian/shobdo/internal/domain/referral"
	"github.com/okian/shobdo/internal/domain/scoring"
)

type scoreKey struct {
	player string
	day    calendar.Day
}

// MemoryStore is an in-process Store. Transactions are serialized by one
// mutex and staged until fn returns nil.
type MemoryStore struct {
	mu sync.RWMutex

	scores     map[scoreKey]model.DailyScore
	byDay      map[calendar.Day][]scoreKey
	edges      map[string]model.ReferralEdge // by referred
	byReferrer map[string][]string           // referrer -> referred, insertion order
	payments   map[string][]model.ReferralPayment

	nextScoreID int64
	nextEdgeID  int64
	closed      bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scores:     make(map[scoreKey]model.DailyScore),
		byDay:      make(map[calendar.Day][]scoreKey),
		edges:      make(map[string]model.ReferralEdge),
		byReferrer: make(map[string][]string),
		payments:   make(map[string][]model.ReferralPayment),
	}
}

// InTx runs fn against a staged view and applies the staged writes when fn
// returns nil.
func (s *MemoryStore) InTx(ctx context.Context, _ string, fn func(ctx context.Context, tx Tx) error) error {
	defer observe("tx", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return unavailable("tx", errStoreClosed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

var errStoreClosed = errors.New("memory store closed")

// TopDaily returns the best records of day.
func (s *MemoryStore) TopDaily(_ context.Context, day calendar.Day, limit int) ([]model.DailyScore, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, unavailable("top_daily", errStoreClosed)
	}

	out := s.dayRecords(day)
	sortBest(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DailyScoresBetween returns records within [from, to].
func (s *MemoryStore) DailyScoresBetween(_ context.Context, from, to calendar.Day, limit int) ([]model.DailyScore, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, unavailable("between", errStoreClosed)
	}

	var out []model.DailyScore
	for day := range s.byDay {
		if !from.IsZero() && day.Before(from) {
			continue
		}
		if !to.IsZero() && day.After(to) {
			continue
		}
		out = append(out, s.dayRecords(day)...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day.After(out[j].Day)
		}
		return less(out[i], out[j])
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Rank returns the player's standing on day.
func (s *MemoryStore) Rank(_ context.Context, player string, day calendar.Day) (int, model.DailyScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, model.DailyScore{}, unavailable("rank", errStoreClosed)
	}

	rec, ok := s.scores[scoreKey{player: player, day: day}]
	if !ok {
		return 0, model.DailyScore{}, ErrNotFound
	}
	rank := 1
	for _, k := range s.byDay[day] {
		if scoring.Better(s.scores[k].Performance, rec.Performance) {
			rank++
		}
	}
	return rank, rec, nil
}

// CountDaily returns the number of records on day.
func (s *MemoryStore) CountDaily(_ context.Context, day calendar.Day) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byDay[day]), nil
}

// Referrals lists the edges of referrer.
func (s *MemoryStore) Referrals(_ context.Context, referrer string) ([]model.ReferralEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ReferralEdge, 0, len(s.byReferrer[referrer]))
	for _, referred := range s.byReferrer[referrer] {
		out = append(out, s.edges[referred])
	}
	return out, nil
}

// Payments lists the payments of referrer.
func (s *MemoryStore) Payments(_ context.Context, referrer string) ([]model.ReferralPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.ReferralPayment(nil), s.payments[referrer]...), nil
}

// Ping reports whether the store is open.
func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return unavailable("ping", errStoreClosed)
	}
	return nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// dayRecords must be called with s.mu held.
func (s *MemoryStore) dayRecords(day calendar.Day) []model.DailyScore {
	keys := s.byDay[day]
	out := make([]model.DailyScore, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.scores[k])
	}
	return out
}

func less(a, b model.DailyScore) bool {
	if c := scoring.Compare(a.Performance, b.Performance); c != 0 {
		return c < 0
	}
	return a.Player < b.Player
}

func sortBest(recs []model.DailyScore) {
	sort.Slice(recs, func(i, j int) bool { return less(recs[i], recs[j]) })
}

// memTx stages writes over a MemoryStore whose lock is held.
type memTx struct {
	s        *MemoryStore
	scores   map[scoreKey]model.DailyScore
	edges    []model.ReferralEdge
	payments []model.ReferralPayment
}

func (t *memTx) DailyScore(_ context.Context, player string, day calendar.Day) (*model.DailyScore, error) {
	k := scoreKey{player: player, day: day}
	if rec, ok := t.scores[k]; ok {
		return &rec, nil
	}
	if rec, ok := t.s.scores[k]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (t *memTx) InsertDailyScore(ctx context.Context, rec *model.DailyScore) error {
	if cur, _ := t.DailyScore(ctx, rec.Player, rec.Day); cur != nil {
		return fmt.Errorf("insert daily score: %w", ErrConflict)
	}
	t.s.nextScoreID++
	rec.ID = t.s.nextScoreID
	t.stage(*rec)
	return nil
}

func (t *memTx) UpdateDailyScore(ctx context.Context, rec *model.DailyScore) error {
	cur, _ := t.DailyScore(ctx, rec.Player, rec.Day)
	if cur == nil || cur.ID != rec.ID {
		return fmt.Errorf("update daily score %d: %w", rec.ID, ErrNotFound)
	}
	next := *cur
	next.Performance = model.Performance{
		Correct:   rec.Correct,
		Incorrect: rec.Incorrect,
		Elapsed:   rec.Elapsed.Truncate(time.Millisecond),
	}
	next.UpdatedAt = rec.UpdatedAt
	t.stage(next)
	return nil
}

func (t *memTx) stage(rec model.DailyScore) {
	if t.scores == nil {
		t.scores = make(map[scoreKey]model.DailyScore)
	}
	rec.Elapsed = rec.Elapsed.Truncate(time.Millisecond)
	t.scores[scoreKey{player: rec.Player, day: rec.Day}] = rec
}

func (t *memTx) ReferralOf(_ context.Context, referred string) (*model.ReferralEdge, error) {
	for _, e := range t.edges {
		if e.Referred == referred {
			return &e, nil
		}
	}
	if e, ok := t.s.edges[referred]; ok {
		return &e, nil
	}
	return nil, nil
}

func (t *memTx) InsertReferral(ctx context.Context, edge *model.ReferralEdge) error {
	if cur, _ := t.ReferralOf(ctx, edge.Referred); cur != nil {
		return fmt.Errorf("insert referral: %w: %w", ErrConflict, referral.ErrDuplicateEdge)
	}
	t.s.nextEdgeID++
	edge.ID = t.s.nextEdgeID
	t.edges = append(t.edges, *edge)
	return nil
}

func (t *memTx) CountReferrals(_ context.Context, referrer string) (int64, error) {
	n := int64(len(t.s.byReferrer[referrer]))
	for _, e := range t.edges {
		if e.Referrer == referrer {
			n++
		}
	}
	return n, nil
}

func (t *memTx) SumPayments(_ context.Context, referrer string) (int64, error) {
	var sum int64
	for _, p := range t.s.payments[referrer] {
		sum += p.Amount
	}
	for _, p := range t.payments {
		if p.Referrer == referrer {
			sum += p.Amount
		}
	}
	return sum, nil
}

func (t *memTx) PaymentByRequest(_ context.Context, referrer, requestID string) (*model.ReferralPayment, error) {
	for _, p := range t.payments {
		if p.Referrer == referrer && p.RequestID == requestID {
			return &p, nil
		}
	}
	for _, p := range t.s.payments[referrer] {
		if p.RequestID == requestID {
			return &p, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertPayment(ctx context.Context, p *model.ReferralPayment) error {
	if p.RequestID != "" {
		if cur, _ := t.PaymentByRequest(ctx, p.Referrer, p.RequestID); cur != nil {
			return fmt.Errorf("insert payment: %w: %w", ErrConflict, referral.ErrDuplicatePayment)
		}
	}
	t.payments = append(t.payments, *p)
	return nil
}

func (t *memTx) commit() {
	s := t.s
	for k, rec := range t.scores {
		if _, exists := s.scores[k]; !exists {
			s.byDay[k.day] = append(s.byDay[k.day], k)
		}
		s.scores[k] = rec
	}
	for _, e := range t.edges {
		s.edges[e.Referred] = e
		s.byReferrer[e.Referrer] = append(s.byReferrer[e.Referrer], e.Referred)
	}
	for _, p := range t.payments {
		s.payments[p.Referrer] = append(s.payments[p.Referrer], p)
	}
}
