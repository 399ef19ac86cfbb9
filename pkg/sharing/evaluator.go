package sharing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/hearthcrm/hearth/pkg/observability"
)

// Evaluator answers record-level read/write access questions. Ownership
// short-circuits to allow; admin status is resolved by the security context
// builder, not here. Database errors propagate to the caller so the builder
// can fail closed.
type Evaluator struct {
	store   *Store
	cache   *redis.Client
	ttl     time.Duration
	logger  *logrus.Logger
	metrics *observability.Metrics
}

// NewEvaluator creates an access evaluator. cache and metrics may be nil;
// without a cache every check hits the database.
func NewEvaluator(store *Store, cache *redis.Client, ttl time.Duration, logger *logrus.Logger, metrics *observability.Metrics) *Evaluator {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Evaluator{
		store:   store,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// CanRead reports whether the user may read the record
func (e *Evaluator) CanRead(ctx context.Context, userID int64, objectAPIName, recordID string, ownerID int64) (bool, error) {
	return e.check(ctx, userID, objectAPIName, recordID, ownerID, false)
}

// CanWrite reports whether the user may write the record
func (e *Evaluator) CanWrite(ctx context.Context, userID int64, objectAPIName, recordID string, ownerID int64) (bool, error) {
	return e.check(ctx, userID, objectAPIName, recordID, ownerID, true)
}

func (e *Evaluator) check(ctx context.Context, userID int64, objectAPIName, recordID string, ownerID int64, write bool) (bool, error) {
	if userID == ownerID {
		e.observe(write, true)
		return true, nil
	}

	cacheKey := e.cacheKey(userID, objectAPIName, recordID, write)
	if allowed, ok := e.cacheGet(ctx, cacheKey); ok {
		e.observe(write, allowed)
		return allowed, nil
	}

	allowed, err := e.store.hasManualShare(ctx, userID, objectAPIName, recordID, write)
	if err != nil {
		return false, err
	}
	if !allowed {
		allowed, err = e.store.hasRuleAccess(ctx, userID, objectAPIName, ownerID, write)
		if err != nil {
			return false, err
		}
	}

	e.cacheSet(ctx, cacheKey, allowed)
	e.observe(write, allowed)
	return allowed, nil
}

func (e *Evaluator) cacheKey(userID int64, objectAPIName, recordID string, write bool) string {
	level := AccessLevelRead
	if write {
		level = AccessLevelReadWrite
	}
	return fmt.Sprintf("sharing:%s:%d:%s:%s", level, userID, objectAPIName, recordID)
}

// cacheGet reads a cached verdict. Cache failures are treated as misses.
func (e *Evaluator) cacheGet(ctx context.Context, key string) (bool, bool) {
	if e.cache == nil {
		return false, false
	}

	val, err := e.cache.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, false
	}
	if err != nil {
		e.logger.WithError(err).Debug("sharing cache read failed")
		return false, false
	}

	allowed, parseErr := strconv.ParseBool(val)
	if parseErr != nil {
		return false, false
	}
	if e.metrics != nil {
		e.metrics.AccessCacheHitsTotal.Inc()
	}
	return allowed, true
}

func (e *Evaluator) cacheSet(ctx context.Context, key string, allowed bool) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, key, strconv.FormatBool(allowed), e.ttl).Err(); err != nil {
		e.logger.WithError(err).Debug("sharing cache write failed")
	}
}

// InvalidateRecord drops cached verdicts for one record after a share change
func (e *Evaluator) InvalidateRecord(ctx context.Context, objectAPIName, recordID string) {
	if e.cache == nil {
		return
	}

	pattern := fmt.Sprintf("sharing:*:*:%s:%s", objectAPIName, recordID)
	iter := e.cache.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := e.cache.Del(ctx, iter.Val()).Err(); err != nil {
			e.logger.WithError(err).Debug("sharing cache invalidation failed")
		}
	}
	if err := iter.Err(); err != nil {
		e.logger.WithError(err).Debug("sharing cache scan failed")
	}
}

func (e *Evaluator) observe(write, allowed bool) {
	if e.metrics == nil {
		return
	}
	level := AccessLevelRead
	if write {
		level = AccessLevelReadWrite
	}
	e.metrics.AccessChecksTotal.WithLabelValues(level, strconv.FormatBool(allowed)).Inc()
}
