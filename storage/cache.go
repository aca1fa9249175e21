package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/saquibalam09/kanban/domain"
)

const (
	tasksQueryKey         = "tasks"
	tasksCacheKey         = "kanban:tasks"
	tasksVersionKey       = "kanban:tasks:version"
	invalidationsChannel  = "kanban:tasks:invalidated"
	invalidationReconnect = time.Second
)

var errStaleVersion = errors.New("tasks cache: shared version moved")

type backend interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
}

// State is a snapshot of the task list query.
type State struct {
	Tasks     []domain.Task
	Loaded    bool
	Fetching  bool
	Err       error
	FetchedAt time.Time
}

type entry struct {
	tasks     []domain.Task
	fetchedAt time.Time
}

// Queries is the process-wide task list cache. The list is a single entry
// that is only ever replaced by a full fetch or discarded by Invalidate.
// When a Redis client is supplied the entry is mirrored there so several
// board servers share fetches and invalidations.
type Queries struct {
	base     backend
	redis    *redis.Client
	ttl      time.Duration
	logger   *log.Logger
	instance string
	group    singleflight.Group

	mu       sync.Mutex
	gen      uint64
	current  *entry
	fetching int
	lastErr  error
	subs     map[chan struct{}]struct{}
}

// NewQueries creates the task list cache over base. client may be nil.
func NewQueries(base backend, client *redis.Client, ttl time.Duration, logger *log.Logger) *Queries {
	if base == nil {
		panic("storage.NewQueries: base is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	if logger == nil {
		logger = log.New()
	}
	return &Queries{
		base:     base,
		redis:    client,
		ttl:      ttl,
		logger:   logger,
		instance: uuid.NewString(),
		subs:     make(map[chan struct{}]struct{}),
	}
}

// Tasks returns the cached task list, fetching it when the entry is missing.
// Concurrent callers share a single fetch per cache generation.
func (q *Queries) Tasks(ctx context.Context) ([]domain.Task, error) {
	q.mu.Lock()
	if q.current != nil {
		tasks := cloneTasks(q.current.tasks)
		q.mu.Unlock()
		return tasks, nil
	}
	gen := q.gen
	q.mu.Unlock()

	// The fetch outlives any single caller; joiners must not fail because
	// the first requester went away.
	fetchCtx := context.WithoutCancel(ctx)
	key := tasksQueryKey + "#" + strconv.FormatUint(gen, 10)
	res := q.group.DoChan(key, func() (any, error) {
		return q.fetch(fetchCtx, gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-res:
		if r.Err != nil {
			return nil, r.Err
		}
		return cloneTasks(r.Val.([]domain.Task)), nil
	}
}

// Refetch invalidates the entry and loads it again.
func (q *Queries) Refetch(ctx context.Context) ([]domain.Task, error) {
	q.Invalidate(ctx)
	return q.Tasks(ctx)
}

// Invalidate discards the cached list. The next read refetches it from the
// Task Store. Fetches already in flight still answer their callers but do
// not repopulate the cache.
//
// The shared mirror is retired before the local entry: a reader racing with
// the local drop must not find the pre-mutation list in Redis.
func (q *Queries) Invalidate(ctx context.Context) {
	if q.redis != nil {
		_, err := q.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Incr(ctx, tasksVersionKey)
			pipe.Del(ctx, tasksCacheKey)
			return nil
		})
		if err != nil {
			q.logger.WithError(err).Warn("tasks cache: redis invalidate failed")
		}
		if err := q.redis.Publish(ctx, invalidationsChannel, q.instance).Err(); err != nil {
			q.logger.WithError(err).Warn("tasks cache: publish invalidation failed")
		}
	}
	q.dropLocal()
	q.notify()
}

// State returns the current query state.
func (q *Queries) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := State{Fetching: q.fetching > 0, Err: q.lastErr}
	if q.current != nil {
		st.Tasks = cloneTasks(q.current.tasks)
		st.Loaded = true
		st.FetchedAt = q.current.fetchedAt
	}
	return st
}

// Subscribe returns a channel signalled after every invalidation. Signals
// are coalesced: a slow reader sees at most one pending signal.
func (q *Queries) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	q.mu.Lock()
	q.subs[ch] = struct{}{}
	q.mu.Unlock()
	return ch
}

// Unsubscribe stops delivering invalidation signals to ch.
func (q *Queries) Unsubscribe(ch chan struct{}) {
	q.mu.Lock()
	delete(q.subs, ch)
	q.mu.Unlock()
}

// ListenInvalidations drops the local entry whenever another board server
// invalidates the shared list. It blocks until ctx is done.
func (q *Queries) ListenInvalidations(ctx context.Context) {
	if q.redis == nil {
		return
	}
	for {
		sub := q.redis.Subscribe(ctx, invalidationsChannel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				if msg.Payload == q.instance {
					continue
				}
				q.dropLocal()
				q.notify()
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		q.logger.Error("tasks cache: invalidation channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(invalidationReconnect):
		}
	}
}

func (q *Queries) dropLocal() {
	q.mu.Lock()
	q.gen++
	q.current = nil
	q.lastErr = nil
	q.mu.Unlock()
}

func (q *Queries) notify() {
	q.mu.Lock()
	for ch := range q.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	q.mu.Unlock()
}

func (q *Queries) fetch(ctx context.Context, gen uint64) (any, error) {
	q.mu.Lock()
	q.fetching++
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.fetching--
		q.mu.Unlock()
	}()

	var (
		tasks   []domain.Task
		version int64
		hit     bool
		mirror  = q.redis != nil
	)
	if mirror {
		var err error
		tasks, version, hit, err = q.loadFromRedis(ctx)
		if err != nil {
			// Redis trouble never fails a read; this fetch skips the mirror.
			q.logger.WithError(err).Warn("tasks cache: redis read failed")
			mirror = false
		}
	}
	if !hit {
		fetched, err := q.base.ListTasks(ctx)
		if err != nil {
			q.mu.Lock()
			if q.gen == gen {
				q.lastErr = err
			}
			q.mu.Unlock()
			return nil, err
		}
		if fetched == nil {
			fetched = []domain.Task{}
		}
		tasks = fetched
		if mirror && !q.storeInRedis(ctx, version, tasks) {
			// Invalidated somewhere while the Task Store answered: the
			// callers get this result but nothing keeps it.
			return tasks, nil
		}
	}

	q.mu.Lock()
	if q.gen == gen {
		q.current = &entry{tasks: tasks, fetchedAt: time.Now()}
		q.lastErr = nil
	}
	q.mu.Unlock()
	return tasks, nil
}

// loadFromRedis reads the shared version together with the mirrored list.
// hit is false when no usable list is mirrored.
func (q *Queries) loadFromRedis(ctx context.Context) (tasks []domain.Task, version int64, hit bool, err error) {
	vals, err := q.redis.MGet(ctx, tasksVersionKey, tasksCacheKey).Result()
	if err != nil {
		return nil, 0, false, err
	}
	if raw, ok := vals[0].(string); ok {
		if version, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, 0, false, fmt.Errorf("parse %s: %w", tasksVersionKey, err)
		}
	}
	raw, ok := vals[1].(string)
	if !ok {
		return nil, version, false, nil
	}
	if err := sonic.UnmarshalString(raw, &tasks); err != nil || tasks == nil {
		q.logger.Warn("tasks cache: dropping corrupt mirror payload")
		_ = q.redis.Del(ctx, tasksCacheKey).Err()
		return nil, version, false, nil
	}
	return tasks, version, true, nil
}

// storeInRedis mirrors tasks only while the shared version still equals the
// one read before the fetch. It reports false when an invalidation moved
// the version in between.
func (q *Queries) storeInRedis(ctx context.Context, version int64, tasks []domain.Task) bool {
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return true
	}
	err = q.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, tasksVersionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleVersion
		}
		if q.ttl == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, tasksCacheKey, data, q.ttl)
			return nil
		})
		return err
	}, tasksVersionKey)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errStaleVersion), errors.Is(err, redis.TxFailedErr):
		return false
	default:
		q.logger.WithError(err).Warn("tasks cache: redis write failed")
		return true
	}
}

func cloneTasks(in []domain.Task) []domain.Task {
	out := make([]domain.Task, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
