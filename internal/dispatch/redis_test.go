package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"renderworker/internal/pkg/errors"
)

// fakeRedis keeps strings and lists in memory.
type fakeRedis struct {
	strings map[string]string
	lists   map[string][]string
	err     error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{strings: map[string]string{}, lists: map[string][]string{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.strings[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.strings[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.strings[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) RPop(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	l := f.lists[key]
	if len(l) == 0 {
		return redis.NewStringResult("", redis.Nil)
	}
	v := l[len(l)-1]
	f.lists[key] = l[:len(l)-1]
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	for _, v := range values {
		var s string
		switch v := v.(type) {
		case []byte:
			s = string(v)
		default:
			s = fmt.Sprint(v)
		}
		f.lists[key] = append([]string{s}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.err)
}

func TestRedisGetWorkerName(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	c := NewRedisClient(rdb)
	info := json.RawMessage(`{ "clientplatform": "soft" }`)

	res, err := c.GetWorkerName(ctx, info, "alpha")
	if err != nil || res.WorkerName != "alpha" {
		t.Fatalf("first claim: %+v, %v", res, err)
	}
	if rdb.strings["gf:worker:alpha"] != `{"clientplatform":"soft"}` {
		t.Errorf("expected compact platform info to be stored, got %q", rdb.strings["gf:worker:alpha"])
	}

	t.Run("same platform reclaims", func(t *testing.T) {
		res, err := c.GetWorkerName(ctx, json.RawMessage(`{"clientplatform":"soft"}`), "alpha")
		if err != nil || res.WorkerName != "alpha" {
			t.Errorf("got %+v, %v", res, err)
		}
	})

	t.Run("other platform is refused", func(t *testing.T) {
		res, err := c.GetWorkerName(ctx, json.RawMessage(`{"clientplatform":"gpu"}`), "alpha")
		if err != nil || res.WorkerName != "" || res.Error != WorkerNameTaken {
			t.Errorf("got %+v, %v", res, err)
		}
	})

	t.Run("missing platform info", func(t *testing.T) {
		res, err := c.GetWorkerName(ctx, nil, "beta")
		if err != nil || res.Error != PlatformInfoMissing {
			t.Errorf("got %+v, %v", res, err)
		}
	})

	t.Run("generated name", func(t *testing.T) {
		res, err := c.GetWorkerName(ctx, info, "")
		if err != nil || !strings.HasPrefix(res.WorkerName, "worker-") || len(res.WorkerName) != len("worker-")+8 {
			t.Errorf("got %+v, %v", res, err)
		}
	})
}

func TestRedisJobs(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	c := NewRedisClient(rdb)

	job, err := c.GetJob(ctx, "alpha")
	if err != nil || job.Kind() != KindNoJob {
		t.Fatalf("empty list: %+v, %v", job, err)
	}

	rdb.lists["gf:jobs:alpha"] = []string{
		`{"jobId":2,"skipJob":{}}`,
		`{"jobId":1,"imageJob":{"name":"first","fragmentSource":"x"}}`,
	}
	job, err = c.GetJob(ctx, "alpha")
	if err != nil || job.Kind() != KindImageJob || job.JobID != 1 {
		t.Fatalf("expected the oldest job first, got %+v, %v", job, err)
	}

	job.ImageJob.Result = &ImageJobResult{Status: StatusSuccess, PassSanityCheck: true}
	if err := c.JobDone(ctx, "alpha", job); err != nil {
		t.Fatalf("JobDone() error = %v", err)
	}
	var back Job
	if err := json.Unmarshal([]byte(rdb.lists["gf:results:alpha"][0]), &back); err != nil {
		t.Fatalf("stored result is not JSON: %v", err)
	}
	if back.JobID != 1 || back.ImageJob.Result.Status != StatusSuccess {
		t.Errorf("unexpected stored result %+v", back)
	}
}

func TestRedisErrors(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	c := NewRedisClient(rdb)

	rdb.err = fmt.Errorf("connection refused")
	if _, err := c.GetJob(ctx, "alpha"); !errors.IsCode(err, errors.CodeTransport) {
		t.Errorf("GetJob: expected TRANSPORT_ERROR, got %v", err)
	}
	if err := c.JobDone(ctx, "alpha", Job{SkipJob: &SkipJob{}}); !errors.IsCode(err, errors.CodeTransport) {
		t.Errorf("JobDone: expected TRANSPORT_ERROR, got %v", err)
	}
	if _, err := c.GetWorkerName(ctx, json.RawMessage(`{}`), "alpha"); !errors.IsCode(err, errors.CodeTransport) {
		t.Errorf("GetWorkerName: expected TRANSPORT_ERROR, got %v", err)
	}
	if err := c.Ping(ctx); !errors.IsCode(err, errors.CodeTransport) {
		t.Errorf("Ping: expected TRANSPORT_ERROR, got %v", err)
	}
}

func TestRedisMalformedJob(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		// result is the job id an UNEXPECTED_ERROR result is pushed for, or
		// -1 when the payload names none.
		result int64
	}{
		{"not json", "not json", -1},
		{"bad field type", `{"jobId":9,"imageJob":{"name":"x","width":"wide"}}`, 9},
		{"bad envelope", `{"jobId":4,"skipJob":[]}`, 4},
		{"no job id", `{"imageJob":{"points":"none"}}`, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			rdb := newFakeRedis()
			c := NewRedisClient(rdb)
			rdb.lists["gf:jobs:alpha"] = []string{tt.payload}

			_, err := c.GetJob(ctx, "alpha")
			if !errors.IsCode(err, errors.CodeValidation) {
				t.Fatalf("expected VALIDATION_ERROR, got %v", err)
			}
			if dead := rdb.lists["gf:dead:alpha"]; len(dead) != 1 || dead[0] != tt.payload {
				t.Errorf("dead letters = %q, want the payload", dead)
			}

			results := rdb.lists["gf:results:alpha"]
			if tt.result < 0 {
				if len(results) != 0 {
					t.Errorf("unexpected results %q", results)
				}
				return
			}
			if len(results) != 1 {
				t.Fatalf("results = %q, want one", results)
			}
			var back Job
			if err := json.Unmarshal([]byte(results[0]), &back); err != nil {
				t.Fatalf("stored result is not JSON: %v", err)
			}
			res := back.ImageJob.Result
			if back.JobID != tt.result || res.Status != StatusUnexpectedError {
				t.Errorf("unexpected result %+v / %+v", back, res)
			}
			if !strings.HasPrefix(res.Log, "UNEXPECTED_ERROR\nmalformed job payload") {
				t.Errorf("Log = %q", res.Log)
			}
		})
	}
}
