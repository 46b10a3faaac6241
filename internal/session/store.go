// internal/session/store.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session records outlive a single connection but not a whole evening:
// anything older than RecordTTL is treated as garbage on load.
const (
	// RecordTTL bounds how long role records and snapshots stay resumable.
	RecordTTL = 30 * time.Minute
	// HostPointerTTL is the short heartbeat window for host rediscovery. A
	// live host refreshes its pointer well inside this.
	HostPointerTTL = 15 * time.Second
)

// ErrNotFound is returned when no record exists (or an expired one was
// purged).
var ErrNotFound = errors.New("session: record not found")

// RoleRecord captures which seat a peer last held in a game, so a refresh
// rejoins as the same role instead of a fresh guest.
type RoleRecord struct {
	PeerID     uuid.UUID `json:"peerId"`
	IsHost     bool      `json:"isHost"`
	PlayerID   int       `json:"playerId"`
	PlayerName string    `json:"playerName"`
	// HostPeerID is set for guests: the host they were attached to.
	HostPeerID uuid.UUID `json:"hostPeerId,omitempty"`
	Timestamp  int64     `json:"timestamp"`
}

// SnapshotRecord is the last known full state a peer persisted, used to
// restore a session after a reload.
type SnapshotRecord struct {
	GameState     json.RawMessage `json:"gameState"`
	LocalPlayerID int             `json:"localPlayerId"`
	IsHost        bool            `json:"isHost"`
	Timestamp     int64           `json:"timestamp"`
}

// Store persists session continuity records in Redis.
type Store struct {
	rdb *redis.Client
}

// Connect initializes a Store from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func Connect(ctx context.Context) (*Store, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Store{rdb: rdb}, nil
}

// NewStore wraps an existing client, mainly for tests.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func roleKey(gameID uuid.UUID) string     { return "gridfall:role:" + gameID.String() }
func snapshotKey(gameID uuid.UUID) string { return "gridfall:snapshot:" + gameID.String() }
func hostPtrKey(gameID uuid.UUID) string  { return "gridfall:hostpeer:" + gameID.String() }

// SaveRole stores the peer's role record for a game under the record TTL.
func (s *Store) SaveRole(ctx context.Context, gameID uuid.UUID, rec RoleRecord) error {
	rec.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal role record: %w", err)
	}
	if err := s.rdb.Set(ctx, roleKey(gameID), data, RecordTTL).Err(); err != nil {
		return fmt.Errorf("save role record: %w", err)
	}
	return nil
}

// LoadRole fetches the peer's role record. Records older than RecordTTL are
// deleted and reported as missing; Redis expiry normally beats the check, but
// the timestamp guards against clock-skewed leftovers.
func (s *Store) LoadRole(ctx context.Context, gameID uuid.UUID) (*RoleRecord, error) {
	data, err := s.rdb.Get(ctx, roleKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load role record: %w", err)
	}
	var rec RoleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal role record: %w", err)
	}
	if s.stale(rec.Timestamp) {
		s.rdb.Del(ctx, roleKey(gameID))
		return nil, ErrNotFound
	}
	return &rec, nil
}

// ResolveRole decides how a peer should enter a game. An explicit invite
// (targeting a specific host peer) wins over any persisted host record: a
// stale "I was the host" claim must not fork the session when the player
// follows a fresh invite link.
func (s *Store) ResolveRole(ctx context.Context, gameID uuid.UUID, invitedHostPeer uuid.UUID) (*RoleRecord, error) {
	rec, err := s.LoadRole(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if invitedHostPeer != uuid.Nil && rec.IsHost && rec.PeerID != invitedHostPeer {
		rec.IsHost = false
		rec.HostPeerID = invitedHostPeer
	}
	return rec, nil
}

// SaveSnapshot stores the last known full state under the record TTL.
func (s *Store) SaveSnapshot(ctx context.Context, gameID uuid.UUID, rec SnapshotRecord) error {
	rec.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, snapshotKey(gameID), data, RecordTTL).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot fetches the last known state, purging stale entries.
func (s *Store) LoadSnapshot(ctx context.Context, gameID uuid.UUID) (*SnapshotRecord, error) {
	data, err := s.rdb.Get(ctx, snapshotKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var rec SnapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if s.stale(rec.Timestamp) {
		s.rdb.Del(ctx, snapshotKey(gameID))
		return nil, ErrNotFound
	}
	return &rec, nil
}

// PublishHostPeer refreshes the short-lived pointer guests use to find the
// current host endpoint for a game. The host republishes this periodically;
// if it stops, the pointer evaporates within HostPointerTTL.
func (s *Store) PublishHostPeer(ctx context.Context, gameID uuid.UUID, hostPeerID uuid.UUID) error {
	if err := s.rdb.Set(ctx, hostPtrKey(gameID), hostPeerID.String(), HostPointerTTL).Err(); err != nil {
		return fmt.Errorf("publish host peer: %w", err)
	}
	return nil
}

// LookupHostPeer resolves the current host endpoint for a game.
func (s *Store) LookupHostPeer(ctx context.Context, gameID uuid.UUID) (uuid.UUID, error) {
	val, err := s.rdb.Get(ctx, hostPtrKey(gameID)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("lookup host peer: %w", err)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed host peer pointer: %w", err)
	}
	return id, nil
}

// Clear removes every record for a game, used on clean termination.
func (s *Store) Clear(ctx context.Context, gameID uuid.UUID) error {
	return s.rdb.Del(ctx, roleKey(gameID), snapshotKey(gameID), hostPtrKey(gameID)).Err()
}

func (s *Store) stale(tsMillis int64) bool {
	return time.Since(time.UnixMilli(tsMillis)) > RecordTTL
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
