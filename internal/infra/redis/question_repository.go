package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"asq-order-service/internal/domain"
	"asq-order-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionSource fetches question definitions from a backing store (e.g., Postgres).
type QuestionSource interface {
	LoadQuestion(ctx context.Context, uid string) (domain.Question, error)
	LoadPresentation(ctx context.Context, presentationID string) ([]domain.Question, error)
	SaveQuestions(ctx context.Context, presentationID string, questions []domain.Question) error
}

// QuestionRepository caches question definitions in Redis and falls back to a source on cache miss.
// Questions are stored as:     SET order:question:{uid} {json}
// Presentations are stored as: SET order:presentation:{id}:questions {json array}
type QuestionRepository struct {
	client *redis.Client
	source QuestionSource
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewQuestionRepository(client *redis.Client, source QuestionSource, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) GetQuestion(ctx context.Context, uid string) (domain.Question, error) {
	var q domain.Question
	if r.readCache(ctx, r.questionKey(uid), &q) {
		return q, nil
	}
	result, err, _ := r.sf.Do(r.questionKey(uid), func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		var q domain.Question
		if r.readCache(ctx, r.questionKey(uid), &q) {
			return q, nil
		}
		q, err := r.source.LoadQuestion(ctx, uid)
		if err != nil {
			return domain.Question{}, err
		}
		r.writeCache(ctx, r.questionKey(uid), q)
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (r *QuestionRepository) QuestionsByType(ctx context.Context, presentationID, typeTag string) ([]domain.Question, error) {
	key := r.presentationKey(presentationID)
	var all []domain.Question
	if !r.readCache(ctx, key, &all) {
		result, err, _ := r.sf.Do(key, func() (interface{}, error) {
			var all []domain.Question
			if r.readCache(ctx, key, &all) {
				return all, nil
			}
			all, err := r.source.LoadPresentation(ctx, presentationID)
			if err != nil {
				return nil, err
			}
			r.writeCache(ctx, key, all)
			return all, nil
		})
		if err != nil {
			return nil, err
		}
		all = result.([]domain.Question)
	}
	return memory.FilterByType(all, typeTag), nil
}

// SaveQuestions writes through to the source and evicts the cached entries.
func (r *QuestionRepository) SaveQuestions(ctx context.Context, presentationID string, questions []domain.Question) error {
	if err := r.source.SaveQuestions(ctx, presentationID, questions); err != nil {
		return err
	}
	keys := []string{r.presentationKey(presentationID)}
	for _, q := range questions {
		keys = append(keys, r.questionKey(q.UID))
	}
	return r.client.Del(ctx, keys...).Err()
}

// readCache treats any Redis failure as a miss.
func (r *QuestionRepository) readCache(ctx context.Context, key string, dst any) bool {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func (r *QuestionRepository) writeCache(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	// best-effort; the source stays authoritative
	_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
}

func (r *QuestionRepository) questionKey(uid string) string {
	return "order:question:" + uid
}

func (r *QuestionRepository) presentationKey(presentationID string) string {
	return "order:presentation:" + presentationID + ":questions"
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
