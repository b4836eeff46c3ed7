package redis

import (
	"context"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/skillpath/skillpath-hub/internal/domain/progress"
	"github.com/skillpath/skillpath-hub/internal/domain/shared"
	"github.com/skillpath/skillpath-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS STORE
// ══════════════════════════════════════════════════════════════════════════════

// ProgressStore implements progress.Repository on Redis.
//
// Layout:
//
//	{prefix}progress:{identity}      HASH  course_id -> record JSON
//	{prefix}progress-identities      SET   identities with any record
type ProgressStore struct {
	cache *Cache
	log   *logger.Logger
}

// NewProgressStore creates a store on top of cache.
func NewProgressStore(cache *Cache, log *logger.Logger) *ProgressStore {
	if log == nil {
		log = logger.Nop()
	}
	return &ProgressStore{
		cache: cache,
		log:   log.With(logger.Component("redis_progress_store")),
	}
}

func (s *ProgressStore) hashKey(identity string) string {
	return s.cache.Key(PrefixProgress, identity)
}

func (s *ProgressStore) identitiesKey() string {
	return s.cache.Key(KeyIdentities)
}

// Get implements progress.Repository.
func (s *ProgressStore) Get(ctx context.Context, identity, courseID string) (*progress.CourseProgress, error) {
	raw, err := s.cache.client.HGet(ctx, s.hashKey(identity), courseID).Bytes()
	if errors.Is(err, redis.Nil) {
		return progress.NewCourseProgress(courseID), nil
	}
	if err != nil {
		return nil, unavailable("Get", err)
	}
	return s.decode(identity, courseID, raw), nil
}

// Save implements progress.Repository. Last write wins.
func (s *ProgressStore) Save(ctx context.Context, identity string, p *progress.CourseProgress) error {
	raw, err := progress.EncodeRecord(p)
	if err != nil {
		return err
	}

	_, err = s.cache.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.hashKey(identity), p.CourseID, raw)
		pipe.SAdd(ctx, s.identitiesKey(), identity)
		return nil
	})
	if err != nil {
		return unavailable("Save", err)
	}
	return nil
}

// Delete implements progress.Repository.
func (s *ProgressStore) Delete(ctx context.Context, identity, courseID string) error {
	key := s.hashKey(identity)
	if err := s.cache.client.HDel(ctx, key, courseID).Err(); err != nil {
		return unavailable("Delete", err)
	}

	n, err := s.cache.client.HLen(ctx, key).Result()
	if err != nil {
		return unavailable("Delete", err)
	}
	if n == 0 {
		if err := s.cache.client.SRem(ctx, s.identitiesKey(), identity).Err(); err != nil {
			return unavailable("Delete", err)
		}
	}
	return nil
}

// GetAll implements progress.Repository.
func (s *ProgressStore) GetAll(ctx context.Context, identity string) (map[string]*progress.CourseProgress, error) {
	fields, err := s.cache.client.HGetAll(ctx, s.hashKey(identity)).Result()
	if err != nil {
		return nil, unavailable("GetAll", err)
	}

	out := make(map[string]*progress.CourseProgress, len(fields))
	for courseID, raw := range fields {
		out[courseID] = s.decode(identity, courseID, []byte(raw))
	}
	return out, nil
}

// ReplaceAll implements progress.Repository in a single MULTI/EXEC block.
func (s *ProgressStore) ReplaceAll(ctx context.Context, identity string, records map[string]*progress.CourseProgress) error {
	values := make([]interface{}, 0, 2*len(records))
	for courseID, p := range records {
		raw, err := progress.EncodeRecord(p)
		if err != nil {
			return err
		}
		values = append(values, courseID, raw)
	}

	key := s.hashKey(identity)
	_, err := s.cache.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) == 0 {
			pipe.SRem(ctx, s.identitiesKey(), identity)
			return nil
		}
		pipe.HSet(ctx, key, values...)
		pipe.SAdd(ctx, s.identitiesKey(), identity)
		return nil
	})
	if err != nil {
		return unavailable("ReplaceAll", err)
	}
	return nil
}

// Identities implements progress.Repository.
func (s *ProgressStore) Identities(ctx context.Context) ([]string, error) {
	ids, err := s.cache.client.SMembers(ctx, s.identitiesKey()).Result()
	if err != nil {
		return nil, unavailable("Identities", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *ProgressStore) decode(identity, courseID string, raw []byte) *progress.CourseProgress {
	p, err := progress.DecodeRecord(courseID, raw)
	if err != nil {
		s.log.Warn("stored progress is corrupted, using empty record",
			logger.Identity(identity), logger.CourseID(courseID), logger.Err(err))
		return progress.NewCourseProgress(courseID)
	}
	return p
}

func unavailable(op string, err error) error {
	return shared.WrapError("progress", op, shared.ErrServiceUnavailable, "redis unavailable", err)
}

var _ progress.Repository = (*ProgressStore)(nil)
