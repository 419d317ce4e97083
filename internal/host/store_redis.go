package host

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// field names of an object hash; property fields are prefixed
const (
	fieldLabel = "_label"
	fieldType  = "_type"
	fieldSeq   = "_seq"
	fieldOrder = "_props"

	prefixValue    = "p:"
	prefixType     = "t:"
	prefixGroup    = "g:"
	prefixReadOnly = "r:"
)

// RedisStore keeps each object as a hash under fcpd:doc:<doc>:obj:<name>
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// constructor for RedisStore. addr is host:port or a redis:// URL.
func NewRedisStore(addr, password string, ttl time.Duration) (*RedisStore, error) {
	opts := &redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		if password != "" {
			parsed.Password = password
		}
		opts = parsed
	}
	rdb := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: rdb, ttl: ttl}, nil
}

func objectKey(doc, name string) string {
	return fmt.Sprintf("fcpd:doc:%s:obj:%s", doc, name)
}

func (r *RedisStore) SaveObjects(ctx context.Context, doc string, records []ObjectRecord) error {
	if r == nil || r.client == nil {
		return nil
	}
	pipe := r.client.TxPipeline()
	for _, rec := range records {
		key := objectKey(doc, rec.Name)
		order := make([]string, 0, len(rec.Properties))
		fields := map[string]any{
			fieldLabel: rec.Label,
			fieldType:  rec.TypeID,
			fieldSeq:   rec.Seq,
		}
		for _, p := range rec.Properties {
			order = append(order, p.Name)
			fields[prefixValue+p.Name] = p.Value
			fields[prefixType+p.Name] = p.Type
			fields[prefixGroup+p.Name] = p.Group
			fields[prefixReadOnly+p.Name] = strconv.FormatBool(p.ReadOnly)
		}
		fields[fieldOrder] = strings.Join(order, " ")

		// removed properties must not survive in the hash
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save failed: %w", err)
	}
	return nil
}

func (r *RedisStore) DeleteObjects(ctx context.Context, doc string, names []string) error {
	if r == nil || r.client == nil || len(names) == 0 {
		return nil
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = objectKey(doc, name)
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisStore) LoadObjects(ctx context.Context, doc string) ([]ObjectRecord, error) {
	if r == nil || r.client == nil {
		return nil, nil
	}
	pattern := objectKey(doc, "*")
	var records []ObjectRecord
	var cursor uint64

	for {
		// SCAN returns keys in batches without blocking
		keys, nextCursor, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			fields, err := r.client.HGetAll(ctx, key).Result()
			if err != nil || len(fields) == 0 {
				continue
			}
			records = append(records, recordFromHash(strings.TrimPrefix(key, objectKey(doc, "")), fields))
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	sortRecords(records)
	return records, nil
}

func recordFromHash(name string, fields map[string]string) ObjectRecord {
	rec := ObjectRecord{
		Name:   name,
		Label:  fields[fieldLabel],
		TypeID: fields[fieldType],
	}
	rec.Seq, _ = strconv.Atoi(fields[fieldSeq])
	for _, prop := range strings.Fields(fields[fieldOrder]) {
		readOnly, _ := strconv.ParseBool(fields[prefixReadOnly+prop])
		rec.Properties = append(rec.Properties, PropertyRecord{
			Name:     prop,
			Type:     fields[prefixType+prop],
			Group:    fields[prefixGroup+prop],
			Value:    fields[prefixValue+prop],
			ReadOnly: readOnly,
		})
	}
	return rec
}

func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
