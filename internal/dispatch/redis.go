package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"renderworker/internal/pkg/errors"
)

// Redis key prefixes shared with the dispatch service.
const (
	workerKeyPrefix  = "gf:worker:"
	jobsKeyPrefix    = "gf:jobs:"
	resultsKeyPrefix = "gf:results:"
	deadKeyPrefix    = "gf:dead:"
)

// RedisConn is the subset of *redis.Client the transport uses.
type RedisConn interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	RPop(ctx context.Context, key string) *redis.StringCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisClient exchanges jobs through Redis lists. Each worker owns a job
// list it pops from and a result list it pushes to; names are claimed with
// SETNX and bound to the platform info that claimed them.
type RedisClient struct {
	rdb RedisConn
}

var _ Client = (*RedisClient)(nil)

// NewRedisClient returns a transport over rdb.
func NewRedisClient(rdb RedisConn) *RedisClient {
	return &RedisClient{rdb: rdb}
}

func (c *RedisClient) GetWorkerName(ctx context.Context, platformInfo json.RawMessage, requested string) (WorkerNameResult, error) {
	info := bytes.TrimSpace(platformInfo)
	if len(info) == 0 || bytes.Equal(info, []byte("null")) {
		return WorkerNameResult{Error: PlatformInfoMissing}, nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, info); err != nil {
		return WorkerNameResult{Error: PlatformInfoMissing}, nil
	}

	name := requested
	if name == "" {
		name = "worker-" + uuid.NewString()[:8]
	}
	key := workerKeyPrefix + name

	claimed, err := c.rdb.SetNX(ctx, key, compact.String(), 0).Result()
	if err != nil {
		return WorkerNameResult{}, errors.Transport(err, "dispatch.worker_name")
	}
	if claimed {
		return WorkerNameResult{WorkerName: name}, nil
	}

	owner, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == redis.Nil:
		return WorkerNameResult{Error: NoSuchWorker}, nil
	case err != nil:
		return WorkerNameResult{}, errors.Transport(err, "dispatch.worker_name")
	case owner == compact.String():
		return WorkerNameResult{WorkerName: name}, nil
	default:
		return WorkerNameResult{Error: WorkerNameTaken}, nil
	}
}

func (c *RedisClient) GetJob(ctx context.Context, worker string) (Job, error) {
	raw, err := c.rdb.RPop(ctx, jobsKeyPrefix+worker).Result()
	if err == redis.Nil {
		return Job{NoJob: &NoJob{}}, nil
	}
	if err != nil {
		return Job{}, errors.Transport(err, "dispatch.job")
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return Job{}, c.reject(ctx, worker, raw, err)
	}
	return job, nil
}

// reject parks an undecodable payload on the worker's dead-letter list. When
// the payload still names a job id, an UNEXPECTED_ERROR result is pushed for
// it so the dispatcher does not wait for it forever.
func (c *RedisClient) reject(ctx context.Context, worker, raw string, cause error) error {
	rejected := errors.Validationf("malformed job payload: %v", cause).
		WithOp("dispatch.job").
		WithField("dead_letter", deadKeyPrefix+worker)

	if err := c.rdb.LPush(ctx, deadKeyPrefix+worker, raw).Err(); err != nil {
		return errors.Transport(err, "dispatch.dead_letter")
	}

	var id struct {
		JobID *int64 `json:"jobId"`
	}
	if json.Unmarshal([]byte(raw), &id) != nil || id.JobID == nil {
		return rejected
	}
	res := Job{JobID: *id.JobID, ImageJob: &ImageJob{Result: &ImageJobResult{
		Status: StatusUnexpectedError,
		Log:    fmt.Sprintf("%s\n%s", StatusUnexpectedError, rejected.Message),
	}}}
	if err := c.JobDone(ctx, worker, res); err != nil {
		return err
	}
	return rejected.WithField("job_id", *id.JobID)
}

func (c *RedisClient) JobDone(ctx context.Context, worker string, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "dispatch.job_done", "encode job")
	}
	if err := c.rdb.LPush(ctx, resultsKeyPrefix+worker, raw).Err(); err != nil {
		return errors.Transport(err, "dispatch.job_done")
	}
	return nil
}

// Ping checks the Redis connection.
func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return errors.Transport(err, "dispatch.ping")
	}
	return nil
}
