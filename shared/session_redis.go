// shared/session_redis.go
package shared

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisSessionStore implements SessionStore on Redis so several instances
// behind one load balancer can resolve each other's sessions (the files
// themselves must live on shared storage for that to work).
// Keys: session:<id> => JSON(Session)
// Sorted set for sweeping: sessions (score: createdAt unix)
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (r *RedisSessionStore) key(id string) string { return "session:" + id }

func (r *RedisSessionStore) Put(filePath, fileName string) (string, error) {
	id, err := NewSessionID()
	if err != nil {
		return "", err
	}
	now := time.Now()
	session := &Session{
		ID:        id,
		FilePath:  filePath,
		FileName:  fileName,
		CreatedAt: now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(session)
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(id), b, 0)
	pipe.ZAdd(ctx, "sessions", redis.Z{Score: float64(now.Unix()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}

	r.SweepExpired(now)
	return id, nil
}

// Take uses GETDEL so two concurrent callers can't both consume one session
func (r *RedisSessionStore) Take(id string) (*Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	val, err := r.client.GetDel(ctx, r.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	_ = r.client.ZRem(ctx, "sessions", id).Err()

	var session Session
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, ErrSessionNotFound
	}
	if _, err := os.Stat(session.FilePath); err != nil {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (r *RedisSessionStore) SweepExpired(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cutoff := now.Add(-r.ttl).Unix()
	ids, err := r.client.ZRangeByScore(ctx, "sessions", &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		log.Printf("WARN: Session sweep failed: %v", err)
		return
	}

	for _, id := range ids {
		val, err := r.client.GetDel(ctx, r.key(id)).Bytes()
		_ = r.client.ZRem(ctx, "sessions", id).Err()
		if err != nil {
			continue
		}
		var session Session
		if err := json.Unmarshal(val, &session); err != nil {
			continue
		}
		if err := os.Remove(session.FilePath); err != nil && !os.IsNotExist(err) {
			log.Printf("WARN: Failed to delete expired file %s: %v", session.FilePath, err)
		}
	}
}
