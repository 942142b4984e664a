package app_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"asq-order-service/internal/app"
	"asq-order-service/internal/domain"
	"asq-order-service/internal/infra/memory"
	"asq-order-service/internal/plugin"
)

func TestLatestSubmissionWins(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(steppingClock())

	submit(t, service, "s1", "q1", "p1", "a", "b", "c")
	submit(t, service, "s1", "q1", "p1", "c", "b", "a")

	view, err := service.PresenterView(ctx, "s1", "q1")
	if err != nil {
		t.Fatalf("presenter view: %v", err)
	}
	if len(view) != 1 {
		t.Fatalf("expected one entry for p1, got %+v", view)
	}
	if view[0].ParticipantID != "p1" || !reflect.DeepEqual(view[0].Submission, []string{"c", "b", "a"}) {
		t.Fatalf("expected p1 -> [c b a], got %+v", view[0])
	}
}

func TestSameTimestampLaterSubmissionWins(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	service, _, _ := newTestService(func() time.Time { return at })

	submit(t, service, "s1", "q1", "p1", "a", "b", "c")
	submit(t, service, "s1", "q1", "p1", "b", "c", "a")

	view, _ := service.PresenterView(ctx, "s1", "q1")
	if len(view) != 1 || !reflect.DeepEqual(view[0].Submission, []string{"b", "c", "a"}) {
		t.Fatalf("expected later record on timestamp tie, got %+v", view)
	}
}

func TestPresenterViewOnePerParticipant(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(steppingClock())

	submit(t, service, "s1", "q1", "p1", "a", "b", "c")
	submit(t, service, "s1", "q1", "p2", "b", "a", "c")
	submit(t, service, "s1", "q1", "p1", "a", "c", "b")
	submit(t, service, "s2", "q1", "p3", "c", "b", "a")

	view, err := service.PresenterView(ctx, "s1", "q1")
	if err != nil {
		t.Fatalf("presenter view: %v", err)
	}
	if len(view) != 2 {
		t.Fatalf("expected two entries, got %+v", view)
	}
	if view[0].ParticipantID != "p1" || !reflect.DeepEqual(view[0].Submission, []string{"a", "c", "b"}) {
		t.Fatalf("unexpected p1 entry %+v", view[0])
	}
	if view[1].ParticipantID != "p2" || !reflect.DeepEqual(view[1].Submission, []string{"b", "a", "c"}) {
		t.Fatalf("unexpected p2 entry %+v", view[1])
	}

	again, _ := service.PresenterView(ctx, "s1", "q1")
	if !reflect.DeepEqual(view, again) {
		t.Fatalf("expected identical results on repeated builds")
	}
}

func TestViewsTolerateEmptyLog(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(steppingClock())

	presenter, err := service.PresenterView(ctx, "s1", "q1")
	if err != nil || presenter == nil || len(presenter) != 0 {
		t.Fatalf("expected empty presenter view, got %#v %v", presenter, err)
	}
	viewer, err := service.ViewerView(ctx, "s1", "p1", []string{"q1", "q2"})
	if err != nil || viewer == nil || len(viewer) != 0 {
		t.Fatalf("expected empty viewer view, got %#v %v", viewer, err)
	}
}

func TestRejectedSubmissionsLeaveLogUnchanged(t *testing.T) {
	ctx := context.Background()
	service, store, _ := newTestService(steppingClock())

	submit(t, service, "s1", "q1", "p1", "a", "b", "c")
	before, _ := store.Query(ctx, domain.SubmissionFilter{})

	cases := []struct {
		req  domain.AnswerRequest
		want error
	}{
		{domain.AnswerRequest{QuestionUID: "missing", Answeree: "p1", Session: "s1", Submission: []string{"a"}}, domain.ErrSchema},
		{domain.AnswerRequest{QuestionUID: "q1", Answeree: "p1", Session: "s1", Submission: []string{"a", "b"}}, domain.ErrMalformedSubmission},
		{domain.AnswerRequest{QuestionUID: "q1", Answeree: "p1", Session: "s1", Submission: []string{"a", "a", "b"}}, domain.ErrMalformedSubmission},
		{domain.AnswerRequest{QuestionUID: "q1", Answeree: "p1", Session: "s1"}, domain.ErrMalformedSubmission},
		{domain.AnswerRequest{QuestionUID: "mc1", Answeree: "p1", Session: "s1", Submission: []string{"a"}}, domain.ErrTypeMismatch},
	}
	for _, tc := range cases {
		if _, err := service.Submit(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("submit %+v: expected %v, got %v", tc.req, tc.want, err)
		}
	}

	after, _ := store.Query(ctx, domain.SubmissionFilter{})
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("rejected submissions changed the log: before=%+v after=%+v", before, after)
	}
}

func TestIngestPassesOtherQuestionTypesThrough(t *testing.T) {
	ctx := context.Background()
	service, store, emitter := newTestService(steppingClock())
	reg := plugin.NewRegistry()
	service.Register(reg)

	req := domain.AnswerRequest{QuestionUID: "mc1", Answeree: "p1", Session: "s1", Submission: []string{"opt-2"}}
	out, err := reg.RunIngest(ctx, req)
	if err != nil {
		t.Fatalf("expected pass-through, got %v", err)
	}
	if !reflect.DeepEqual(out, req) {
		t.Fatalf("expected request unchanged, got %+v", out)
	}
	if store.Len() != 0 || emitter.count() != 0 {
		t.Fatalf("expected no append and no push, got %d records %d events", store.Len(), emitter.count())
	}

	_, err = reg.RunIngest(ctx, domain.AnswerRequest{QuestionUID: "q1", Answeree: "p1", Session: "s1", Submission: []string{"a"}})
	if !errors.Is(err, domain.ErrMalformedSubmission) {
		t.Fatalf("expected malformed error through the hook, got %v", err)
	}

	stored, err := reg.RunIngest(ctx, domain.AnswerRequest{QuestionUID: "q1", Answeree: "p1", Session: "s1", Submission: []string{"c", "b", "a"}})
	if err != nil || stored.HandledBy != domain.QuestionType {
		t.Fatalf("expected stored answer to be marked handled, got %+v %v", stored, err)
	}
}

func TestSubmitPushesFullProgressToPresenters(t *testing.T) {
	service, _, emitter := newTestService(steppingClock())

	submit(t, service, "s1", "q1", "p1", "a", "b", "c")
	submit(t, service, "s1", "q1", "p2", "c", "b", "a")

	events := emitter.roleEvents("s1", domain.RolePresenter)
	if len(events) != 2 {
		t.Fatalf("expected two progress pushes, got %d", len(events))
	}
	last, ok := events[1].payload.(domain.ProgressEvent)
	if !ok || events[1].name != domain.EventProgress {
		t.Fatalf("expected progress event, got %s %T", events[1].name, events[1].payload)
	}
	if last.QuestionUID != "q1" || last.QuestionType != domain.QuestionType || len(last.Submissions) != 2 {
		t.Fatalf("expected full aggregate of two participants, got %+v", last)
	}
}

func TestViewerReconnectReturnsOnlyOwnAnswers(t *testing.T) {
	ctx := context.Background()
	service, _, emitter := newTestService(steppingClock())

	submit(t, service, "s1", "q1", "p1", "a", "b", "c")
	submit(t, service, "s1", "q2", "p1", "y", "x")
	submit(t, service, "s1", "q1", "p2", "b", "a", "c")
	submit(t, service, "s1", "q1", "p2", "c", "a", "b")

	info := domain.ConnectInfo{SocketID: "sock-p2", SessionID: "s1", PresentationID: "pres-1", WhitelistID: "p2"}
	if _, err := service.ViewerConnected(ctx, info); err != nil {
		t.Fatalf("viewer connected: %v", err)
	}

	events := emitter.socketEvents("sock-p2")
	if len(events) != 1 || events[0].name != domain.EventRestoreViewer {
		t.Fatalf("expected one restoreViewer event, got %+v", events)
	}
	restore := events[0].payload.(domain.RestoreViewerEvent)
	want := []domain.ViewerEntry{{UID: "q1", Orders: []string{"c", "a", "b"}}}
	if !reflect.DeepEqual(restore.Questions, want) {
		t.Fatalf("expected %+v, got %+v", want, restore.Questions)
	}
}

func TestPresenterReconnectWithoutSubmissions(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(steppingClock())

	restore, err := service.PresenterReconnect(ctx, "s1", "pres-1")
	if err != nil {
		t.Fatalf("presenter reconnect: %v", err)
	}
	if len(restore.Questions) != 2 {
		t.Fatalf("expected both ordering questions, got %+v", restore.Questions)
	}
	for _, q := range restore.Questions {
		if q.Submissions == nil || len(q.Submissions) != 0 {
			t.Fatalf("expected empty submissions for %s, got %#v", q.UID, q.Submissions)
		}
	}

	none, err := service.PresenterReconnect(ctx, "s1", "pres-without-order-questions")
	if err != nil {
		t.Fatalf("presenter reconnect empty presentation: %v", err)
	}
	if none.Questions == nil || len(none.Questions) != 0 {
		t.Fatalf("expected empty bundle, got %#v", none.Questions)
	}
}

func TestPresenterReconnectMatchesLiveProgress(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	// Every second pair of submissions shares a timestamp.
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return at.Add(time.Duration(tick/2) * time.Second)
	}
	service, _, emitter := newTestService(clock)

	orders := map[string][][]string{
		"q1": {{"a", "b", "c"}, {"b", "c", "a"}, {"c", "a", "b"}},
		"q2": {{"x", "y"}, {"y", "x"}},
	}
	for round := 0; round < 4; round++ {
		for p := 1; p <= 3; p++ {
			participant := fmt.Sprintf("p%d", p)
			for _, uid := range []string{"q1", "q2"} {
				if (round+p)%3 == 0 {
					continue
				}
				options := orders[uid]
				submit(t, service, "s1", uid, participant, options[(round*p)%len(options)]...)
			}
		}
	}

	live := make(map[string][]domain.PresenterEntry)
	for _, ev := range emitter.roleEvents("s1", domain.RolePresenter) {
		progress := ev.payload.(domain.ProgressEvent)
		live[progress.QuestionUID] = progress.Submissions
	}

	restore, err := service.PresenterReconnect(ctx, "s1", "pres-1")
	if err != nil {
		t.Fatalf("presenter reconnect: %v", err)
	}
	for _, q := range restore.Questions {
		if !reflect.DeepEqual(q.Submissions, live[q.UID]) {
			t.Fatalf("question %s: reconstruction %+v differs from live %+v", q.UID, q.Submissions, live[q.UID])
		}
	}

	again, _ := service.PresenterReconnect(ctx, "s1", "pres-1")
	if !reflect.DeepEqual(restore, again) {
		t.Fatalf("expected reconstruction to be deterministic")
	}
}

func TestConcurrentSubmissionsKeepLatestPerParticipant(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService(steppingClock())

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(participant string) {
				defer wg.Done()
				if _, err := service.Submit(ctx, domain.AnswerRequest{
					QuestionUID: "q1", Answeree: participant, Session: "s1", Submission: []string{"a", "b", "c"},
				}); err != nil {
					t.Errorf("submit: %v", err)
				}
			}(fmt.Sprintf("p%d", p))
		}
	}
	wg.Wait()

	view, err := service.PresenterView(ctx, "s1", "q1")
	if err != nil {
		t.Fatalf("presenter view: %v", err)
	}
	if len(view) != 10 {
		t.Fatalf("expected one entry per participant, got %d", len(view))
	}
}

func TestConnectHooksIgnoreMissingSession(t *testing.T) {
	ctx := context.Background()
	service, _, emitter := newTestService(steppingClock())
	reg := plugin.NewRegistry()
	service.Register(reg)

	if _, err := reg.RunConnectPresenter(ctx, domain.ConnectInfo{SocketID: "sock-1"}); err != nil {
		t.Fatalf("presenter hook: %v", err)
	}
	if _, err := reg.RunConnectViewer(ctx, domain.ConnectInfo{SocketID: "sock-1", WhitelistID: "p1"}); err != nil {
		t.Fatalf("viewer hook: %v", err)
	}
	if emitter.count() != 0 {
		t.Fatalf("expected no restore events without a session, got %d", emitter.count())
	}
}

func TestDefineStoresExtractedQuestions(t *testing.T) {
	ctx := context.Background()
	source := memory.NewStaticQuestionSource()
	repo := memory.NewQuestionRepository(source, time.Minute)
	extractor := stubExtractor{questions: []domain.Question{
		{UID: "new-q", Type: domain.QuestionType, Items: []string{"one", "two"}},
	}}
	service := app.NewOrderService(memory.NewSubmissionStore(), repo, newRecordingEmitter(),
		app.WithDefinitions(extractor, repo))
	reg := plugin.NewRegistry()
	service.Register(reg)

	doc, err := reg.RunDefine(ctx, domain.Document{PresentationID: "pres-9", HTML: "<asq-order-q></asq-order-q>"})
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	if doc.HTML != "rewritten" || len(doc.Questions) != 1 {
		t.Fatalf("expected rewritten document with one question, got %+v", doc)
	}
	questions, err := repo.QuestionsByType(ctx, "pres-9", domain.QuestionType)
	if err != nil || len(questions) != 1 || questions[0].UID != "new-q" {
		t.Fatalf("expected stored question, got %+v %v", questions, err)
	}

	if _, err := service.Submit(ctx, domain.AnswerRequest{QuestionUID: "new-q", Answeree: "p1", Session: "s1", Submission: []string{"two", "one"}}); err != nil {
		t.Fatalf("submit to defined question: %v", err)
	}
}

type stubExtractor struct {
	questions []domain.Question
}

func (e stubExtractor) Extract(_, _ string) (string, []domain.Question, error) {
	return "rewritten", e.questions, nil
}

type emitted struct {
	target  string
	name    string
	payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	role   []emitted
	socket []emitted
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{}
}

func (e *recordingEmitter) EmitToRole(sessionID, role, event string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.role = append(e.role, emitted{target: sessionID + "/" + role, name: event, payload: payload})
	return nil
}

func (e *recordingEmitter) EmitToSocket(socketID, event string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.socket = append(e.socket, emitted{target: socketID, name: event, payload: payload})
	return nil
}

func (e *recordingEmitter) roleEvents(sessionID, role string) []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []emitted
	for _, ev := range e.role {
		if ev.target == sessionID+"/"+role {
			out = append(out, ev)
		}
	}
	return out
}

func (e *recordingEmitter) socketEvents(socketID string) []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []emitted
	for _, ev := range e.socket {
		if ev.target == socketID {
			out = append(out, ev)
		}
	}
	return out
}

func (e *recordingEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.role) + len(e.socket)
}

func submit(t *testing.T, service *app.OrderService, session, question, participant string, items ...string) {
	t.Helper()
	if _, err := service.Submit(context.Background(), domain.AnswerRequest{
		QuestionUID: question,
		Answeree:    participant,
		Session:     session,
		Submission:  items,
	}); err != nil {
		t.Fatalf("submit %s/%s/%s: %v", session, question, participant, err)
	}
}

// steppingClock advances one second per call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	at := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		at = at.Add(time.Second)
		return at
	}
}

func newTestService(clock func() time.Time) (*app.OrderService, *memory.SubmissionStore, *recordingEmitter) {
	store := memory.NewSubmissionStore()
	questions := memory.NewQuestionRepository(memory.NewStaticQuestionSource(
		domain.Question{UID: "q1", Type: domain.QuestionType, PresentationID: "pres-1", Items: []string{"a", "b", "c"}},
		domain.Question{UID: "mc1", Type: "asq-multi-choice-q", PresentationID: "pres-1"},
		domain.Question{UID: "q2", Type: domain.QuestionType, PresentationID: "pres-1", Items: []string{"x", "y"}},
	), 5*time.Minute)
	emitter := newRecordingEmitter()
	return app.NewOrderService(store, questions, emitter, app.WithClock(clock)), store, emitter
}
