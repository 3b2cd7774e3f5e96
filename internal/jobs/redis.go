package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxUpdateRetries = 10

// RedisRegistry stores each job as a hash at viewcapture:job:<id>, so several
// service instances can share job state. Entries expire after TTL.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRegistry wraps client. A non-positive ttl keeps entries forever.
func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, ttl: ttl}
}

func jobKey(id string) string {
	return "viewcapture:job:" + id
}

func (r *RedisRegistry) Create(ctx context.Context, job Job) error {
	key := jobKey(job.ID)
	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("job %s already exists", job.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			r.save(ctx, pipe, job)
			return nil
		})
		return err
	}, key)
}

func (r *RedisRegistry) Get(ctx context.Context, id string) (Job, error) {
	vals, err := r.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return Job{}, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(vals) == 0 {
		return Job{}, ErrNotFound
	}
	return decodeJob(vals)
}

// Update reads, modifies and writes the job inside a WATCH transaction,
// retrying when another writer changed it concurrently.
func (r *RedisRegistry) Update(ctx context.Context, id string, fn func(*Job)) (Job, error) {
	key := jobKey(id)
	var out Job
	update := func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(vals) == 0 {
			return ErrNotFound
		}
		job, err := decodeJob(vals)
		if err != nil {
			return err
		}
		fn(&job)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			r.save(ctx, pipe, job)
			return nil
		})
		if err == nil {
			out = job
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, update, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return Job{}, fmt.Errorf("updating job %s: too much contention", id)
}

func (r *RedisRegistry) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, jobKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisRegistry) save(ctx context.Context, pipe redis.Pipeliner, job Job) {
	key := jobKey(job.ID)
	pipe.HSet(ctx, key, encodeJob(job))
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
}

func encodeJob(j Job) map[string]any {
	fields := map[string]any{
		"id":         j.ID,
		"status":     string(j.Status),
		"source_url": j.SourceURL,
		"created_at": j.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": j.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"page_count": j.PageCount,
	}
	if j.Result != "" {
		fields["result"] = j.Result
	}
	if j.Error != "" {
		fields["error"] = j.Error
	}
	if j.Outcome != "" {
		fields["outcome"] = string(j.Outcome)
	}
	if len(j.MissingPages) > 0 {
		parts := make([]string, len(j.MissingPages))
		for i, p := range j.MissingPages {
			parts[i] = strconv.Itoa(p)
		}
		fields["missing_pages"] = strings.Join(parts, ",")
	}
	return fields
}

func decodeJob(vals map[string]string) (Job, error) {
	j := Job{
		ID:        vals["id"],
		Status:    Status(vals["status"]),
		SourceURL: vals["source_url"],
		Result:    vals["result"],
		Error:     vals["error"],
		Outcome:   Outcome(vals["outcome"]),
	}
	var err error
	if j.CreatedAt, err = time.Parse(time.RFC3339Nano, vals["created_at"]); err != nil {
		return Job{}, fmt.Errorf("decoding created_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339Nano, vals["updated_at"]); err != nil {
		return Job{}, fmt.Errorf("decoding updated_at: %w", err)
	}
	if v := vals["page_count"]; v != "" {
		if j.PageCount, err = strconv.Atoi(v); err != nil {
			return Job{}, fmt.Errorf("decoding page_count: %w", err)
		}
	}
	if v := vals["missing_pages"]; v != "" {
		for _, s := range strings.Split(v, ",") {
			n, err := strconv.Atoi(s)
			if err != nil {
				return Job{}, fmt.Errorf("decoding missing_pages: %w", err)
			}
			j.MissingPages = append(j.MissingPages, n)
		}
	}
	return j, nil
}
