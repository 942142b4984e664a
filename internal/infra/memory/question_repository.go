package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"asq-order-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionSource loads and stores question definitions in a backing store
// (static map, Postgres).
type QuestionSource interface {
	LoadQuestion(ctx context.Context, uid string) (domain.Question, error)
	LoadPresentation(ctx context.Context, presentationID string) ([]domain.Question, error)
	SaveQuestions(ctx context.Context, presentationID string, questions []domain.Question) error
}

// QuestionRepository caches question definitions with TTL to avoid repeated DB hits.
type QuestionRepository struct {
	source QuestionSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand

	mu            sync.RWMutex
	questions     map[string]cached[domain.Question]
	presentations map[string]cached[[]domain.Question]
}

type cached[T any] struct {
	value     T
	expiresAt time.Time
}

func NewQuestionRepository(source QuestionSource, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		source:        source,
		ttl:           ttl,
		clock:         time.Now,
		rnd:           rand.New(rand.NewSource(time.Now().UnixNano())),
		questions:     make(map[string]cached[domain.Question]),
		presentations: make(map[string]cached[[]domain.Question]),
	}
}

func (r *QuestionRepository) GetQuestion(ctx context.Context, uid string) (domain.Question, error) {
	if q, ok := lookup(r, r.questions, uid); ok {
		return q, nil
	}
	result, err, _ := r.sf.Do("q:"+uid, func() (interface{}, error) {
		if q, ok := lookup(r, r.questions, uid); ok {
			return q, nil
		}
		q, err := r.source.LoadQuestion(ctx, uid)
		if err != nil {
			return domain.Question{}, err
		}
		expiresAt := r.clock().Add(r.ttlWithJitter())
		r.mu.Lock()
		r.questions[uid] = cached[domain.Question]{value: q, expiresAt: expiresAt}
		r.mu.Unlock()
		return q, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

// QuestionsByType returns the presentation's questions of typeTag in authored
// order. Unknown presentations yield an empty slice.
func (r *QuestionRepository) QuestionsByType(ctx context.Context, presentationID, typeTag string) ([]domain.Question, error) {
	all, ok := lookup(r, r.presentations, presentationID)
	if !ok {
		result, err, _ := r.sf.Do("p:"+presentationID, func() (interface{}, error) {
			if all, ok := lookup(r, r.presentations, presentationID); ok {
				return all, nil
			}
			all, err := r.source.LoadPresentation(ctx, presentationID)
			if err != nil {
				return nil, err
			}
			expiresAt := r.clock().Add(r.ttlWithJitter())
			r.mu.Lock()
			r.presentations[presentationID] = cached[[]domain.Question]{value: all, expiresAt: expiresAt}
			r.mu.Unlock()
			return all, nil
		})
		if err != nil {
			return nil, err
		}
		all = result.([]domain.Question)
	}
	return FilterByType(all, typeTag), nil
}

// SaveQuestions writes through to the source and drops the affected cache entries.
func (r *QuestionRepository) SaveQuestions(ctx context.Context, presentationID string, questions []domain.Question) error {
	if err := r.source.SaveQuestions(ctx, presentationID, questions); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.presentations, presentationID)
	for _, q := range questions {
		delete(r.questions, q.UID)
	}
	r.mu.Unlock()
	return nil
}

func lookup[T any](r *QuestionRepository, entries map[string]cached[T], key string) (T, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := entries[key]
	if !ok || !entry.expiresAt.After(now) {
		var zero T
		return zero, false
	}
	return entry.value, true
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// FilterByType keeps questions whose type equals typeTag, preserving order.
func FilterByType(questions []domain.Question, typeTag string) []domain.Question {
	out := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if q.Type == typeTag {
			out = append(out, q)
		}
	}
	return out
}

// StaticQuestionSource is a simple source backed by in-memory maps (useful for tests/demos).
type StaticQuestionSource struct {
	mu            sync.RWMutex
	questions     map[string]domain.Question
	presentations map[string][]string
}

// NewStaticQuestionSource seeds the source with questions; each question is
// filed under its PresentationID in slice order.
func NewStaticQuestionSource(questions ...domain.Question) *StaticQuestionSource {
	s := &StaticQuestionSource{
		questions:     make(map[string]domain.Question),
		presentations: make(map[string][]string),
	}
	for _, q := range questions {
		s.put(q.PresentationID, q)
	}
	return s
}

func (s *StaticQuestionSource) LoadQuestion(_ context.Context, uid string) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q, ok := s.questions[uid]; ok {
		return q, nil
	}
	return domain.Question{}, domain.ErrSchema
}

func (s *StaticQuestionSource) LoadPresentation(_ context.Context, presentationID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uids := s.presentations[presentationID]
	out := make([]domain.Question, 0, len(uids))
	for _, uid := range uids {
		out = append(out, s.questions[uid])
	}
	return out, nil
}

func (s *StaticQuestionSource) SaveQuestions(_ context.Context, presentationID string, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range questions {
		q.PresentationID = presentationID
		s.put(presentationID, q)
	}
	return nil
}

// put must be called with mu held (or during construction).
func (s *StaticQuestionSource) put(presentationID string, q domain.Question) {
	if _, exists := s.questions[q.UID]; !exists {
		s.presentations[presentationID] = append(s.presentations[presentationID], q.UID)
	}
	s.questions[q.UID] = q
}
