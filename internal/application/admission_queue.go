package application

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/observability"
)

// NotQueued is the position reported for a user that is not in line.
const NotQueued = -1

// AdmissionQueue keeps one FIFO line per lot. Positions are 0-based and a
// user appears at most once per line. The outer mutex only guards the map;
// each line has its own lock so lots never contend with each other.
type AdmissionQueue struct {
	mu      sync.Mutex
	lines   map[uuid.UUID]*admissionLine
	perUser time.Duration
	now     func() time.Time
	metrics *observability.Metrics
}

type admissionLine struct {
	mu        sync.Mutex
	users     []uuid.UUID
	headSince time.Time
}

type QueueStatus struct {
	Position      int
	WaitingCount  int
	EstimatedWait time.Duration
}

type StalledHead struct {
	LotID  uuid.UUID
	UserID uuid.UUID
	Since  time.Time
}

func NewAdmissionQueue(perUser time.Duration, metrics *observability.Metrics) *AdmissionQueue {
	return &AdmissionQueue{
		lines:   make(map[uuid.UUID]*admissionLine),
		perUser: perUser,
		now:     time.Now,
		metrics: metrics,
	}
}

func (q *AdmissionQueue) line(lotID uuid.UUID) *admissionLine {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.lines[lotID]
	if !ok {
		l = &admissionLine{}
		q.lines[lotID] = l
	}
	return l
}

func (q *AdmissionQueue) existing(lotID uuid.UUID) (*admissionLine, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.lines[lotID]
	return l, ok
}

// Enqueue appends the user unless already present and returns the position.
func (q *AdmissionQueue) Enqueue(lotID, userID uuid.UUID) int {
	l := q.line(lotID)
	l.mu.Lock()
	defer l.mu.Unlock()

	if pos := slices.Index(l.users, userID); pos >= 0 {
		return pos
	}
	l.users = append(l.users, userID)
	if len(l.users) == 1 {
		l.headSince = q.now()
	}
	q.metrics.QueueEntriesDelta(1)
	return len(l.users) - 1
}

func (q *AdmissionQueue) Position(lotID, userID uuid.UUID) int {
	l, ok := q.existing(lotID)
	if !ok {
		return NotQueued
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Index(l.users, userID)
}

// Status reports the user's place in line; ok is false when absent.
func (q *AdmissionQueue) Status(lotID, userID uuid.UUID) (QueueStatus, bool) {
	l, ok := q.existing(lotID)
	if !ok {
		return QueueStatus{Position: NotQueued}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := slices.Index(l.users, userID)
	if pos < 0 {
		return QueueStatus{Position: NotQueued, WaitingCount: len(l.users)}, false
	}
	return QueueStatus{
		Position:      pos,
		WaitingCount:  len(l.users),
		EstimatedWait: time.Duration(pos) * q.perUser,
	}, true
}

func (q *AdmissionQueue) EstimatedWait(lotID, userID uuid.UUID) (time.Duration, bool) {
	st, ok := q.Status(lotID, userID)
	return st.EstimatedWait, ok
}

func (q *AdmissionQueue) WaitingCount(lotID uuid.UUID) int {
	l, ok := q.existing(lotID)
	if !ok {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}

func (q *AdmissionQueue) Head(lotID uuid.UUID) (uuid.UUID, bool) {
	l, ok := q.existing(lotID)
	if !ok {
		return uuid.Nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.users) == 0 {
		return uuid.Nil, false
	}
	return l.users[0], true
}

// DequeueNext pops the head. It only advances whose turn is next.
func (q *AdmissionQueue) DequeueNext(lotID uuid.UUID) (uuid.UUID, bool) {
	l, ok := q.existing(lotID)
	if !ok {
		return uuid.Nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.users) == 0 {
		return uuid.Nil, false
	}
	head := l.users[0]
	q.removeAt(l, 0)
	return head, true
}

func (q *AdmissionQueue) Remove(lotID, userID uuid.UUID) bool {
	l, ok := q.existing(lotID)
	if !ok {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	pos := slices.Index(l.users, userID)
	if pos < 0 {
		return false
	}
	q.removeAt(l, pos)
	return true
}

// Advance drops a user who finished and returns the head that follows,
// in a single step so no other change can slip in between.
func (q *AdmissionQueue) Advance(lotID, userID uuid.UUID) (uuid.UUID, bool) {
	l, ok := q.existing(lotID)
	if !ok {
		return uuid.Nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos := slices.Index(l.users, userID); pos >= 0 {
		q.removeAt(l, pos)
	}
	if len(l.users) == 0 {
		return uuid.Nil, false
	}
	return l.users[0], true
}

// ExpireHead pops the head only if it is still userID, returning the new head.
func (q *AdmissionQueue) ExpireHead(lotID, userID uuid.UUID) (next uuid.UUID, hasNext, expired bool) {
	l, ok := q.existing(lotID)
	if !ok {
		return uuid.Nil, false, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.users) == 0 || l.users[0] != userID {
		return uuid.Nil, false, false
	}
	q.removeAt(l, 0)
	if len(l.users) == 0 {
		return uuid.Nil, false, true
	}
	return l.users[0], true, true
}

// StalledHeads lists heads that have been at position 0 for longer than maxAge.
func (q *AdmissionQueue) StalledHeads(maxAge time.Duration) []StalledHead {
	q.mu.Lock()
	snapshot := make(map[uuid.UUID]*admissionLine, len(q.lines))
	for id, l := range q.lines {
		snapshot[id] = l
	}
	q.mu.Unlock()

	cutoff := q.now().Add(-maxAge)
	var stalled []StalledHead
	for lotID, l := range snapshot {
		l.mu.Lock()
		if len(l.users) > 0 && l.headSince.Before(cutoff) {
			stalled = append(stalled, StalledHead{LotID: lotID, UserID: l.users[0], Since: l.headSince})
		}
		l.mu.Unlock()
	}
	return stalled
}

// removeAt must be called with l.mu held.
func (q *AdmissionQueue) removeAt(l *admissionLine, pos int) {
	l.users = slices.Delete(l.users, pos, pos+1)
	if pos == 0 && len(l.users) > 0 {
		l.headSince = q.now()
	}
	q.metrics.QueueEntriesDelta(-1)
}
