package jobs

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisRegistry(t *testing.T, ttl time.Duration) (*RedisRegistry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisRegistry(client, ttl), mr
}

func registries(t *testing.T) map[string]Registry {
	r, _ := newRedisRegistry(t, 0)
	return map[string]Registry{
		"memory": NewMemoryRegistry(),
		"redis":  r,
	}
}

func sampleJob(id string) Job {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Job{ID: id, Status: StatusQueued, SourceURL: "https://docs.example.com/file/d/x/view", CreatedAt: now, UpdatedAt: now}
}

func TestRegistry_Lifecycle(t *testing.T) {
	ctx := context.Background()
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			if err := reg.Create(ctx, sampleJob("a")); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if err := reg.Create(ctx, sampleJob("a")); err == nil {
				t.Error("duplicate Create succeeded")
			}

			got, err := reg.Get(ctx, "a")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Status != StatusQueued || got.SourceURL == "" || !got.CreatedAt.Equal(sampleJob("a").CreatedAt) {
				t.Errorf("Get = %+v", got)
			}

			updated, err := reg.Update(ctx, "a", func(j *Job) {
				j.Status = StatusCompleted
				j.Outcome = OutcomePartial
				j.Result = "/download/a"
				j.PageCount = 3
				j.MissingPages = []int{2, 5}
			})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if !updated.Done() {
				t.Error("completed job not Done")
			}

			got, err = reg.Get(ctx, "a")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Outcome != OutcomePartial || got.PageCount != 3 || !slices.Equal(got.MissingPages, []int{2, 5}) || got.Result != "/download/a" {
				t.Errorf("after Update = %+v", got)
			}

			if err := reg.Delete(ctx, "a"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := reg.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after Delete: err = %v, want ErrNotFound", err)
			}
			if err := reg.Delete(ctx, "a"); !errors.Is(err, ErrNotFound) {
				t.Errorf("second Delete: err = %v, want ErrNotFound", err)
			}
			if _, err := reg.Update(ctx, "missing", func(*Job) {}); !errors.Is(err, ErrNotFound) {
				t.Errorf("Update missing: err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestRegistry_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			if err := reg.Create(ctx, sampleJob("c")); err != nil {
				t.Fatal(err)
			}
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := reg.Update(ctx, "c", func(j *Job) { j.PageCount++ }); err != nil {
						t.Errorf("Update: %v", err)
					}
				}()
			}
			wg.Wait()
			got, _ := reg.Get(ctx, "c")
			if got.PageCount != 8 {
				t.Errorf("PageCount = %d, want 8", got.PageCount)
			}
		})
	}
}

func TestMemoryRegistry_Isolation(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	job := sampleJob("m")
	job.MissingPages = []int{1}
	if err := reg.Create(ctx, job); err != nil {
		t.Fatal(err)
	}
	job.MissingPages[0] = 99

	got, _ := reg.Get(ctx, "m")
	got.MissingPages[0] = 42
	again, _ := reg.Get(ctx, "m")
	if again.MissingPages[0] != 1 {
		t.Errorf("stored MissingPages = %v, want [1]", again.MissingPages)
	}
}

func TestRedisRegistry_TTL(t *testing.T) {
	ctx := context.Background()
	reg, mr := newRedisRegistry(t, time.Hour)
	if err := reg.Create(ctx, sampleJob("t")); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(jobKey("t")); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := reg.Get(ctx, "t"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after expiry: err = %v, want ErrNotFound", err)
	}
}
