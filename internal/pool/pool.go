// Package pool tracks the chat participants eligible to become a slot's
// active speaker. Membership is bounded both in size and in time, and is
// cleaned up lazily: every registration inspects only the oldest entry.
package pool

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Defaults used by the reference deployment.
const (
	DefaultMaxUsers       = 2000
	DefaultActivityWindow = 450 * time.Second
)

// Reason explains why an entry was evicted.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonInactive
	ReasonOverCapacity
)

// String returns a human-readable eviction reason.
func (r Reason) String() string {
	switch r {
	case ReasonInactive:
		return "inactive"
	case ReasonOverCapacity:
		return "over capacity"
	default:
		return "none"
	}
}

// Eviction describes an entry removed during Register.
type Eviction struct {
	Identity string
	LastSeen time.Time
	Reason   Reason
}

// Option configures a Pool.
type Option func(*Pool)

// WithMaxUsers sets the size bound.
func WithMaxUsers(n int) Option {
	return func(p *Pool) {
		p.maxUsers = n
	}
}

// WithActivityWindow sets how long an entry may stay silent.
func WithActivityWindow(d time.Duration) Option {
	return func(p *Pool) {
		p.window = d
	}
}

// WithRandom replaces the source used by PickRandom. intn must return a
// value in [0, n).
func WithRandom(intn func(n int) int) Option {
	return func(p *Pool) {
		p.intn = intn
	}
}

// Pool is an insertion-ordered mapping from lowercase identity to the time
// it was last registered. The first entry is the eviction candidate.
//
// Pool is not safe for concurrent use; the owning slot serializes access.
type Pool struct {
	entries  *linkedhashmap.Map // string -> time.Time
	maxUsers int
	window   time.Duration
	intn     func(n int) int
}

// New creates an empty pool.
func New(opts ...Option) *Pool {
	p := &Pool{
		entries:  linkedhashmap.New(),
		maxUsers: DefaultMaxUsers,
		window:   DefaultActivityWindow,
		intn:     rand.IntN,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetLimits replaces the size and time bounds. Existing entries are not
// swept; they are cleaned up by later registrations.
func (p *Pool) SetLimits(maxUsers int, window time.Duration) {
	p.maxUsers = maxUsers
	p.window = window
}

// Register records identity as active at now. A present identity is moved
// to the back of the eviction order. Afterwards exactly one eviction check
// runs against the oldest entry, so a pool far over its bound shrinks by at
// most one entry per call.
func (p *Pool) Register(identity string, now time.Time) (Eviction, bool) {
	key := Normalize(identity)

	// linkedhashmap keeps the original position on overwrite.
	p.entries.Remove(key)
	p.entries.Put(key, now)

	return p.evictOldest(now)
}

func (p *Pool) evictOldest(now time.Time) (Eviction, bool) {
	it := p.entries.Iterator()
	if !it.First() {
		return Eviction{}, false
	}
	oldest := it.Key().(string)
	seen := it.Value().(time.Time)

	overCapacity := p.entries.Size() > p.maxUsers
	inactive := now.Sub(seen) > p.window
	if !overCapacity && !inactive {
		return Eviction{}, false
	}

	p.entries.Remove(oldest)
	ev := Eviction{Identity: oldest, LastSeen: seen, Reason: ReasonInactive}
	if overCapacity {
		ev.Reason = ReasonOverCapacity
	}
	return ev, true
}

// PickRandom returns a uniformly chosen member. The pool is not modified.
func (p *Pool) PickRandom() (string, bool) {
	n := p.entries.Size()
	if n == 0 {
		return "", false
	}
	keys := p.entries.Keys()
	return keys[p.intn(n)].(string), true
}

// PickExplicit returns identity unchanged. Selection by name does not
// require membership: registration and activation are independent.
func (p *Pool) PickExplicit(identity string) string {
	return identity
}

// Contains reports whether identity is currently registered.
func (p *Pool) Contains(identity string) bool {
	_, ok := p.entries.Get(Normalize(identity))
	return ok
}

// LastSeen returns the registration time of identity.
func (p *Pool) LastSeen(identity string) (time.Time, bool) {
	v, ok := p.entries.Get(Normalize(identity))
	if !ok {
		return time.Time{}, false
	}
	return v.(time.Time), true
}

// Len returns the number of members.
func (p *Pool) Len() int {
	return p.entries.Size()
}

// Members returns identities in eviction order, oldest first.
func (p *Pool) Members() []string {
	keys := p.entries.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.(string)
	}
	return out
}

// Normalize returns the pool key for identity.
func Normalize(identity string) string {
	return strings.ToLower(identity)
}
