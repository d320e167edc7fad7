// Package session implements the in-memory session store.
//
// Frontends are stateless web processes; anything they need to survive a
// browser redirect (most importantly the PayPal approval round trip) is
// parked here under a random session id. Sessions hold a snapshot of
// capitalized request fields, expire on a per-session TTL, and can be
// reached through alias ids that are safe to expose in URLs.
//
// Sharding
// ========
//
// Sessions are spread across 32 independent shards, each with its own lock,
// so concurrent connections rarely contend. Ids are random UUIDs, which
// makes xxhash of the id an even shard selector. 32 shards is plenty: the
// store caps out at a few hundred live sessions, this is about lock spread,
// not capacity.
//
// Expiry
// ======
//
// Expiration is enforced twice, the same way the daemon's other TTL state
// is. Lazily: every access checks the deadline and treats a stale session
// as gone. Actively: the server's maintenance loop calls DeleteExpired on a
// ticker, which walks all shards and evicts stale entries along with their
// aliases. A full walk is fine here because the session population is
// bounded by MaxSessions; there is nothing to sample.
//
// Every successful access refreshes the session's deadline, so a session
// stays alive as long as a checkout flow keeps touching it.
//
// Aliases
// =======
//
// An alias is a second random id resolving to a session. Aliases live in
// one store-wide map guarded by its own lock; each session also tracks its
// alias set so destroying the session (explicitly or by expiry) cascades.
// When a shard lock and the alias lock are both needed, the shard lock is
// always taken first.
//
// Limits
// ======
//
// MaxSessions and MaxAliases bound the store as a whole; MaxFields and
// MaxBytes bound a single session's payload. The payload caps matter on
// put: a frontend stuck in a retry loop must not grow a session without
// bound, so an oversized put reports ErrTooLarge and the command layer
// responds by destroying the session outright.

package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"payd.lopezb.com/internal/payd/dict"
)

const shardCount = 32

// Defaults applied by New for zero Config fields.
const (
	DefaultMaxSessions = 512
	DefaultMaxAliases  = 512
	DefaultMaxFields   = 64
	DefaultMaxBytes    = 64 * 1024
	DefaultTTL         = 30 * time.Minute
	DefaultMaxTTL      = 4 * time.Hour
)

var (
	ErrLimit     = errors.New("session: limit reached")
	ErrNotFound  = errors.New("session: not found or expired")
	ErrInvalidID = errors.New("session: malformed id")
	ErrTooLarge  = errors.New("session: data size cap exceeded")
)

// Config holds the store's capacity and lifetime knobs.
type Config struct {
	MaxSessions int
	MaxAliases  int
	MaxFields   int // fields per session
	MaxBytes    int // serialized name+value bytes per session
	DefaultTTL  time.Duration
	MaxTTL      time.Duration
}

type entry struct {
	fields    *dict.Dict
	ttl       time.Duration
	expiresAt time.Time
	aliases   map[string]struct{}
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

type shard struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

// Store is the sharded session store. All methods are safe for concurrent
// use.
type Store struct {
	cfg    Config
	shards [shardCount]*shard

	aliasMu sync.RWMutex
	aliases map[string]string // alias id -> session id

	sessionCount atomic.Int64
	aliasCount   atomic.Int64
}

// New creates a store, filling zero Config fields with the package defaults.
func New(cfg Config) *Store {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.MaxAliases <= 0 {
		cfg.MaxAliases = DefaultMaxAliases
	}
	if cfg.MaxFields <= 0 {
		cfg.MaxFields = DefaultMaxFields
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = DefaultMaxTTL
	}

	s := &Store{
		cfg:     cfg,
		aliases: make(map[string]string),
	}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*entry)}
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	return s.shards[xxhash.Sum64String(id)&(shardCount-1)]
}

// wellFormedID accepts exactly the canonical 36-character UUID form that
// Create and CreateAlias hand out. Anything else is a caller bug or a
// probing client, reported as ErrInvalidID rather than a lookup miss.
func wellFormedID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// cloneChecked snapshots the capitalized fields of d and enforces the
// per-session payload caps.
func (s *Store) cloneChecked(d *dict.Dict) (*dict.Dict, error) {
	if d == nil {
		return dict.New(), nil
	}

	c := d.CloneCapitalized()
	if c.Len() > s.cfg.MaxFields {
		return nil, ErrTooLarge
	}
	size := 0
	for _, it := range c.Items() {
		size += len(it.Name) + len(it.Value)
	}
	if size > s.cfg.MaxBytes {
		return nil, ErrTooLarge
	}
	return c, nil
}

func (s *Store) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return s.cfg.DefaultTTL
	}
	if ttl > s.cfg.MaxTTL {
		return s.cfg.MaxTTL
	}
	return ttl
}

// Create stores a new session holding the capitalized fields of init (which
// may be nil) and returns its id. A non-positive ttl selects the default;
// oversized ttls are clamped to the maximum.
func (s *Store) Create(ttl time.Duration, init *dict.Dict) (string, error) {
	fields, err := s.cloneChecked(init)
	if err != nil {
		return "", err
	}

	// Reserve a slot before allocating the id; roll back if over the cap.
	if s.sessionCount.Add(1) > int64(s.cfg.MaxSessions) {
		s.sessionCount.Add(-1)
		return "", ErrLimit
	}

	id := uuid.NewString()
	d := s.clampTTL(ttl)
	e := &entry{
		fields:    fields,
		ttl:       d,
		expiresAt: time.Now().Add(d),
		aliases:   make(map[string]struct{}),
	}

	sh := s.shardFor(id)
	sh.mu.Lock()
	sh.sessions[id] = e
	sh.mu.Unlock()

	return id, nil
}

// Get returns a copy of the session's fields and refreshes its deadline.
func (s *Store) Get(id string) (*dict.Dict, error) {
	if !wellFormedID(id) {
		return nil, ErrInvalidID
	}

	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, err := s.liveLocked(sh, id)
	if err != nil {
		return nil, err
	}

	e.expiresAt = time.Now().Add(e.ttl)
	return e.fields.Clone(), nil
}

// Put replaces the session's stored fields with the capitalized fields of d
// and refreshes the deadline. An ErrTooLarge return means the session still
// holds its previous fields; the command layer destroys it in that case.
func (s *Store) Put(id string, d *dict.Dict) error {
	if !wellFormedID(id) {
		return ErrInvalidID
	}

	fields, err := s.cloneChecked(d)
	if err != nil {
		return err
	}

	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, err := s.liveLocked(sh, id)
	if err != nil {
		return err
	}

	e.fields = fields
	e.expiresAt = time.Now().Add(e.ttl)
	return nil
}

// Destroy removes a session and all its aliases.
func (s *Store) Destroy(id string) error {
	if !wellFormedID(id) {
		return ErrInvalidID
	}

	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.sessions[id]
	if !ok {
		return ErrNotFound
	}
	expired := e.expired(time.Now())
	s.removeLocked(sh, id, e)
	if expired {
		return ErrNotFound
	}
	return nil
}

// CreateAlias returns a new alias id for an existing session.
func (s *Store) CreateAlias(id string) (string, error) {
	if !wellFormedID(id) {
		return "", ErrInvalidID
	}

	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, err := s.liveLocked(sh, id)
	if err != nil {
		return "", err
	}

	if s.aliasCount.Add(1) > int64(s.cfg.MaxAliases) {
		s.aliasCount.Add(-1)
		return "", ErrLimit
	}

	alias := uuid.NewString()

	s.aliasMu.Lock()
	s.aliases[alias] = id
	s.aliasMu.Unlock()

	e.aliases[alias] = struct{}{}
	e.expiresAt = time.Now().Add(e.ttl)
	return alias, nil
}

// Resolve maps an alias back to its session id, refreshing the session.
func (s *Store) Resolve(alias string) (string, error) {
	if !wellFormedID(alias) {
		return "", ErrInvalidID
	}

	s.aliasMu.RLock()
	id, ok := s.aliases[alias]
	s.aliasMu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}

	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, err := s.liveLocked(sh, id)
	if err != nil {
		return "", err
	}

	e.expiresAt = time.Now().Add(e.ttl)
	return id, nil
}

// DestroyAlias removes a single alias, leaving the session alive.
func (s *Store) DestroyAlias(alias string) error {
	if !wellFormedID(alias) {
		return ErrInvalidID
	}

	s.aliasMu.Lock()
	id, ok := s.aliases[alias]
	if ok {
		delete(s.aliases, alias)
		s.aliasCount.Add(-1)
	}
	s.aliasMu.Unlock()

	if !ok {
		return ErrNotFound
	}

	// Detach from the owning session if it is still around.
	sh := s.shardFor(id)
	sh.mu.Lock()
	if e, ok := sh.sessions[id]; ok {
		delete(e.aliases, alias)
	}
	sh.mu.Unlock()

	return nil
}

// Len returns the number of live sessions (including entries awaiting the
// next sweep).
func (s *Store) Len() int {
	return int(s.sessionCount.Load())
}

// DeleteExpired evicts every expired session and its aliases. The server's
// maintenance loop drives this on a ticker. Returns the number of sessions
// removed.
func (s *Store) DeleteExpired() int {
	now := time.Now()
	removed := 0

	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, e := range sh.sessions {
			if e.expired(now) {
				s.removeLocked(sh, id, e)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	return removed
}

// liveLocked looks up a session and lazily evicts it when expired. The
// shard lock must be held.
func (s *Store) liveLocked(sh *shard, id string) (*entry, error) {
	e, ok := sh.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if e.expired(time.Now()) {
		s.removeLocked(sh, id, e)
		return nil, ErrNotFound
	}
	return e, nil
}

// removeLocked deletes a session and cascades to its aliases. The shard
// lock must be held; the alias lock is taken nested, which matches the
// store-wide lock order.
func (s *Store) removeLocked(sh *shard, id string, e *entry) {
	delete(sh.sessions, id)
	s.sessionCount.Add(-1)

	if len(e.aliases) == 0 {
		return
	}
	s.aliasMu.Lock()
	for alias := range e.aliases {
		delete(s.aliases, alias)
		s.aliasCount.Add(-1)
	}
	s.aliasMu.Unlock()
}
