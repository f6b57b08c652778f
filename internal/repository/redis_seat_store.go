package repository

// This file implements SeatStore on top of Redis.  Each seat is one hash
// holding status, owner, deadline and version.  Conditional writes run as
// Lua scripts so the version check and the write are a single atomic step
// on the server, which keeps the per-seat compare-and-set contract when
// the store lives outside the process.

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/seat-hold-service/internal/model"
)

var casScript = redis.NewScript(`
    local cur = redis.call('HGET', KEYS[1], 'version')
    if not cur then
        return -1
    end
    if cur ~= ARGV[1] then
        return 0
    end
    local v = tonumber(cur) + 1
    redis.call('HSET', KEYS[1], 'status', ARGV[2], 'owner', ARGV[3], 'expires_at_ms', ARGV[4], 'version', tostring(v))
    return v
`)

var resetScript = redis.NewScript(`
    local n = 0
    for _, key in ipairs(KEYS) do
        if redis.call('EXISTS', key) == 1 then
            redis.call('HSET', key, 'status', 'AVAILABLE', 'owner', '', 'expires_at_ms', 0)
            redis.call('HINCRBY', key, 'version', 1)
            n = n + 1
        end
    end
    return n
`)

// RedisSeatStore is a SeatStore backed by a Redis server.  Call Init once
// before use.
type RedisSeatStore struct {
	rdb    *redis.Client
	prefix string
	order  []string
	known  map[string]struct{}
}

// NewRedisSeatStore binds a store to rdb.  Keys are namespaced with prefix.
func NewRedisSeatStore(rdb *redis.Client, prefix string, ids []string) *RedisSeatStore {
	if prefix == "" {
		prefix = "seats"
	}
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	return &RedisSeatStore{
		rdb:    rdb,
		prefix: prefix,
		order:  append([]string(nil), ids...),
		known:  known,
	}
}

func (s *RedisSeatStore) key(seatID string) string {
	return s.prefix + ":seat:" + seatID
}

func (s *RedisSeatStore) keys() []string {
	out := make([]string, len(s.order))
	for i, id := range s.order {
		out[i] = s.key(id)
	}
	return out
}

// Init seeds every seat as AVAILABLE with version 0, discarding whatever a
// previous process left behind.
func (s *RedisSeatStore) Init(ctx context.Context) error {
	pipe := s.rdb.TxPipeline()
	for _, id := range s.order {
		k := s.key(id)
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k, "status", string(model.SeatAvailable), "owner", "", "expires_at_ms", 0, "version", 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("seed seats: %w", err)
	}
	return nil
}

// Get reads one seat hash.
func (s *RedisSeatStore) Get(ctx context.Context, seatID string) (model.SeatRecord, error) {
	if _, ok := s.known[seatID]; !ok {
		return model.SeatRecord{}, ErrSeatNotFound
	}
	m, err := s.rdb.HGetAll(ctx, s.key(seatID)).Result()
	if err != nil {
		return model.SeatRecord{}, fmt.Errorf("get seat %s: %w", seatID, err)
	}
	return decodeRecord(seatID, m)
}

// CompareAndSet runs the version-checked write script.
func (s *RedisSeatStore) CompareAndSet(ctx context.Context, seatID string, expected, next model.SeatRecord) (model.SeatRecord, bool, error) {
	if _, ok := s.known[seatID]; !ok {
		return model.SeatRecord{}, false, ErrSeatNotFound
	}
	if err := checkRecord(next); err != nil {
		return model.SeatRecord{}, false, err
	}
	v, err := casScript.Run(ctx, s.rdb, []string{s.key(seatID)},
		strconv.FormatUint(expected.Version, 10),
		string(next.Status),
		next.OwnerID,
		unixMilli(next.HoldExpiresAt),
	).Int64()
	if err != nil {
		return model.SeatRecord{}, false, fmt.Errorf("cas seat %s: %w", seatID, err)
	}
	switch {
	case v < 0:
		return model.SeatRecord{}, false, ErrNotInitialized
	case v == 0:
		cur, err := s.Get(ctx, seatID)
		return cur, false, err
	}
	rec := next
	rec.SeatID = seatID
	rec.Version = uint64(v)
	// Round the deadline the same way it was stored so a later Get compares equal.
	rec.HoldExpiresAt = fromMilli(unixMilli(next.HoldExpiresAt))
	return rec, true, nil
}

// Snapshot pipelines one HGETALL per seat.
func (s *RedisSeatStore) Snapshot(ctx context.Context) ([]model.SeatRecord, error) {
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(s.order))
	for i, id := range s.order {
		cmds[i] = pipe.HGetAll(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("snapshot seats: %w", err)
	}
	out := make([]model.SeatRecord, 0, len(s.order))
	for i, id := range s.order {
		rec, err := decodeRecord(id, cmds[i].Val())
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ResetAll runs the reset script over every seat key.
func (s *RedisSeatStore) ResetAll(ctx context.Context) error {
	if err := resetScript.Run(ctx, s.rdb, s.keys()).Err(); err != nil {
		return fmt.Errorf("reset seats: %w", err)
	}
	return nil
}

func decodeRecord(seatID string, m map[string]string) (model.SeatRecord, error) {
	if len(m) == 0 {
		return model.SeatRecord{}, fmt.Errorf("seat %s: %w", seatID, ErrNotInitialized)
	}
	rec := model.SeatRecord{
		SeatID:  seatID,
		Status:  model.SeatStatus(m["status"]),
		OwnerID: m["owner"],
	}
	if !rec.Status.Valid() {
		return model.SeatRecord{}, fmt.Errorf("seat %s: unknown status %q", seatID, m["status"])
	}
	if ms, err := strconv.ParseInt(m["expires_at_ms"], 10, 64); err == nil {
		rec.HoldExpiresAt = fromMilli(ms)
	}
	v, err := strconv.ParseUint(m["version"], 10, 64)
	if err != nil {
		return model.SeatRecord{}, fmt.Errorf("seat %s: bad version %q", seatID, m["version"])
	}
	rec.Version = v
	return rec, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
