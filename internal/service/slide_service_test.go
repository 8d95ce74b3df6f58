package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/models"
	"github.com/peerlearn/peerlearn-api/pkg/jobs"
	"github.com/peerlearn/peerlearn-api/pkg/slides"
)

// memorySlideStates applies the same predicates as the SQL transitions.
type memorySlideStates struct {
	mu     sync.Mutex
	owners map[string]string
	states map[string]*models.SlideState
}

func newMemorySlideStates() *memorySlideStates {
	return &memorySlideStates{owners: map[string]string{}, states: map[string]*models.SlideState{}}
}

func slideKey(kind models.SessionKind, id string) string { return string(kind) + "/" + id }

func (m *memorySlideStates) seed(kind models.SessionKind, id, userID string, state models.SlideState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[slideKey(kind, id)] = userID
	m.states[slideKey(kind, id)] = &state
}

func (m *memorySlideStates) status(kind models.SessionKind, id string) models.SlidesStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[slideKey(kind, id)].Status
}

func (m *memorySlideStates) Get(ctx context.Context, kind models.SessionKind, id, userID string) (*models.SlideState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := slideKey(kind, id)
	if m.owners[key] != userID {
		return nil, sql.ErrNoRows
	}
	cp := *m.states[key]
	return &cp, nil
}

func (m *memorySlideStates) MarkProcessing(ctx context.Context, kind models.SessionKind, id, userID string, at time.Time) (models.SlidesStatus, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := slideKey(kind, id)
	state := m.states[key]
	if m.owners[key] != userID || (state.Status != models.SlidesPending && state.Status != models.SlidesProcessing) {
		return "", false, nil
	}
	previous := state.Status
	state.Status, state.StartedAt, state.Error = models.SlidesProcessing, &at, nil
	return previous, true, nil
}

func (m *memorySlideStates) AbandonStart(ctx context.Context, kind models.SessionKind, id string, startedAt time.Time, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.states[slideKey(kind, id)]
	if state.Status != models.SlidesProcessing || state.StartedAt == nil || !state.StartedAt.Equal(startedAt) {
		return false, nil
	}
	state.Status, state.Error = models.SlidesFailed, &reason
	return true, nil
}

func (m *memorySlideStates) MarkCompleted(ctx context.Context, kind models.SessionKind, id, pdfURL string, images []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.states[slideKey(kind, id)]
	if state.Status != models.SlidesProcessing && state.Status != models.SlidesCompleted {
		return false, nil
	}
	state.Status, state.PDFURL, state.Images = models.SlidesCompleted, &pdfURL, images
	return true, nil
}

func (m *memorySlideStates) MarkFailed(ctx context.Context, kind models.SessionKind, id, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.states[slideKey(kind, id)]
	if state.Status != models.SlidesProcessing {
		return false, nil
	}
	state.Status, state.Error = models.SlidesFailed, &reason
	return true, nil
}

func (m *memorySlideStates) FailStuck(ctx context.Context, kind models.SessionKind, cutoff time.Time, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, state := range m.states {
		if key[:len(kind)] != string(kind) || state.Status != models.SlidesProcessing || state.StartedAt == nil || state.StartedAt.After(cutoff) {
			continue
		}
		r := reason
		state.Status, state.Error = models.SlidesFailed, &r
		n++
	}
	return n, nil
}

type recordingQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func TestSlideServiceStartTransitions(t *testing.T) {
	states := newMemorySlideStates()
	queue := &recordingQueue{}
	svc := NewSlideService(states, zap.NewNop())
	svc.SetQueue(queue)
	ctx := context.Background()

	states.seed(models.SessionYouTube, "s1", "u1", models.SlideState{Status: models.SlidesPending})
	resp, queued, err := svc.Start(ctx, models.SessionYouTube, "s1", "u1")
	require.NoError(t, err)
	assert.True(t, queued)
	assert.Equal(t, models.SlidesProcessing, resp.Status)
	assert.NotNil(t, resp.Images)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, SlideJob{Kind: models.SessionYouTube, SessionID: "s1"}, queue.jobs[0].Payload)

	resp, queued, err = svc.Start(ctx, models.SessionYouTube, "s1", "u1")
	require.NoError(t, err)
	assert.True(t, queued)
	assert.Equal(t, models.SlidesProcessing, resp.Status)
	require.Len(t, queue.jobs, 2)
	assert.NotEqual(t, queue.jobs[0].ID, queue.jobs[1].ID)

	states.seed(models.SessionDocument, "d1", "u1", models.SlideState{Status: models.SlidesCompleted})
	resp, queued, err = svc.Start(ctx, models.SessionDocument, "d1", "u1")
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, slidesReadyMessage, resp.Message)

	states.seed(models.SessionDocument, "d2", "u1", models.SlideState{Status: models.SlidesFailed})
	_, _, err = svc.Start(ctx, models.SessionDocument, "d2", "u1")
	assertAppError(t, err, http.StatusConflict, "Slide generation already failed for this session")

	_, _, err = svc.Start(ctx, models.SessionYouTube, "s1", "u2")
	assertAppError(t, err, http.StatusNotFound, "Session not found")
}

func TestSlideServiceEnqueueFailureMarksFailed(t *testing.T) {
	states := newMemorySlideStates()
	svc := NewSlideService(states, zap.NewNop())
	svc.SetQueue(&recordingQueue{err: errors.New("queue full")})
	states.seed(models.SessionYouTube, "s1", "u1", models.SlideState{Status: models.SlidesPending})

	_, _, err := svc.Start(context.Background(), models.SessionYouTube, "s1", "u1")
	assertAppError(t, err, http.StatusInternalServerError, "")
	assert.Equal(t, models.SlidesFailed, states.states["youtube/s1"].Status)
}

func TestSlideServiceEnqueueFailureKeepsRunningJob(t *testing.T) {
	states := newMemorySlideStates()
	queue := &recordingQueue{}
	svc := NewSlideService(states, zap.NewNop())
	svc.SetQueue(queue)
	ctx := context.Background()
	states.seed(models.SessionYouTube, "s1", "u1", models.SlideState{Status: models.SlidesPending})

	_, queued, err := svc.Start(ctx, models.SessionYouTube, "s1", "u1")
	require.NoError(t, err)
	require.True(t, queued)

	for _, enqueueErr := range []error{jobs.ErrQueueFull, jobs.ErrDuplicate} {
		queue.err = enqueueErr
		resp, queued, err := svc.Start(ctx, models.SessionYouTube, "s1", "u1")
		require.NoError(t, err)
		assert.False(t, queued)
		assert.Equal(t, slidesRunningMessage, resp.Message)
		assert.Equal(t, models.SlidesProcessing, states.status(models.SessionYouTube, "s1"))
	}
}

type gatedOutliner struct {
	release chan struct{}
}

func (g *gatedOutliner) SlideOutline(ctx context.Context, title, summary string) ([]slides.Slide, error) {
	select {
	case <-g.release:
		return []slides.Slide{{Title: title}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSlideServiceConcurrentStartsEndCompleted(t *testing.T) {
	states := newMemorySlideStates()
	states.seed(models.SessionYouTube, "s1", "u1", models.SlideState{Status: models.SlidesPending})
	sessions := slideSessions{youtube: map[string]*models.YouTubeSession{
		"s1": {ID: "s1", VideoTitle: "Photosynthesis", ShortSummary: "light to sugar"},
	}}
	outliner := &gatedOutliner{release: make(chan struct{})}
	worker := NewSlideWorker(states, youtubeByID(sessions), documentByID(sessions), outliner, stubRenderer{}, &memoryObjectStore{}, nil, zap.NewNop())

	finished := make(chan error, 2)
	queue := jobs.NewQueue("slides", func(ctx context.Context, job jobs.Job) error {
		err := worker.Handle(ctx, job)
		finished <- err
		return err
	}, jobs.QueueConfig{Workers: 1, BufferSize: 4})
	queue.Start(context.Background())
	defer queue.Stop()

	svc := NewSlideService(states, zap.NewNop())
	svc.SetQueue(queue)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Start(context.Background(), models.SessionYouTube, "s1", "u1")
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, models.SlidesProcessing, states.status(models.SessionYouTube, "s1"))

	close(outliner.release)
	for i := 0; i < 2; i++ {
		select {
		case err := <-finished:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("slide job did not finish")
		}
	}
	assert.Equal(t, models.SlidesCompleted, states.status(models.SessionYouTube, "s1"))
}

func TestSlideServiceFailStuck(t *testing.T) {
	states := newMemorySlideStates()
	svc := NewSlideService(states, zap.NewNop())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	old, fresh := now.Add(-time.Hour), now.Add(-time.Minute)
	states.seed(models.SessionYouTube, "old", "u1", models.SlideState{Status: models.SlidesProcessing, StartedAt: &old})
	states.seed(models.SessionDocument, "fresh", "u1", models.SlideState{Status: models.SlidesProcessing, StartedAt: &fresh})

	n, err := svc.FailStuck(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, models.SlidesFailed, states.states["youtube/old"].Status)
	assert.Equal(t, slidesStuckReason, *states.states["youtube/old"].Error)
	assert.Equal(t, models.SlidesProcessing, states.states["document/fresh"].Status)
}

type slideSessions struct {
	youtube  map[string]*models.YouTubeSession
	document map[string]*models.DocumentSession
}

type youtubeByID slideSessions

func (s youtubeByID) FindByID(ctx context.Context, id string) (*models.YouTubeSession, error) {
	if v, ok := s.youtube[id]; ok {
		return v, nil
	}
	return nil, sql.ErrNoRows
}

type documentByID slideSessions

func (s documentByID) FindByID(ctx context.Context, id string) (*models.DocumentSession, error) {
	if v, ok := s.document[id]; ok {
		return v, nil
	}
	return nil, sql.ErrNoRows
}

type stubOutliner struct {
	gotSummary string
	err        error
}

func (s *stubOutliner) SlideOutline(ctx context.Context, title, summary string) ([]slides.Slide, error) {
	s.gotSummary = summary
	if s.err != nil {
		return nil, s.err
	}
	return []slides.Slide{{Title: title}, {Title: "Key points", Bullets: []string{"one"}}}, nil
}

type stubRenderer struct{}

func (stubRenderer) RenderAll(ctx context.Context, deck []slides.Slide) ([][]byte, error) {
	out := make([][]byte, len(deck))
	for i := range deck {
		out[i] = []byte("png")
	}
	return out, nil
}

func (stubRenderer) AssemblePDF(title string, images [][]byte) ([]byte, error) {
	return []byte("%PDF"), nil
}

type recordingSlideMetrics struct{ outcomes []string }

func (r *recordingSlideMetrics) ObserveSlideJob(outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}

func TestSlideWorkerCompletesJob(t *testing.T) {
	states := newMemorySlideStates()
	states.seed(models.SessionDocument, "d1", "u1", models.SlideState{Status: models.SlidesProcessing})
	sessions := slideSessions{document: map[string]*models.DocumentSession{
		"d1": {ID: "d1", Title: "Cells", Content: "raw content", ShortSummary: "short"},
	}}
	outliner := &stubOutliner{}
	store := &memoryObjectStore{}
	metrics := &recordingSlideMetrics{}
	worker := NewSlideWorker(states, youtubeByID(sessions), documentByID(sessions), outliner, stubRenderer{}, store, metrics, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{Type: SlideJobType, Payload: SlideJob{Kind: models.SessionDocument, SessionID: "d1"}})
	require.NoError(t, err)
	assert.Equal(t, "short", outliner.gotSummary)

	state := states.states["document/d1"]
	assert.Equal(t, models.SlidesCompleted, state.Status)
	require.NotNil(t, state.PDFURL)
	assert.Equal(t, "/static/slides/document/d1/slides.pdf", *state.PDFURL)
	assert.Equal(t, []string{"/static/slides/document/d1/slide_1.png", "/static/slides/document/d1/slide_2.png"}, []string(state.Images))
	assert.Contains(t, store.objects, "slides/document/d1/slide_2.png")
	assert.Equal(t, []string{"completed"}, metrics.outcomes)
}

func TestSlideWorkerRecordsFailure(t *testing.T) {
	states := newMemorySlideStates()
	states.seed(models.SessionYouTube, "y1", "u1", models.SlideState{Status: models.SlidesProcessing})
	sessions := slideSessions{youtube: map[string]*models.YouTubeSession{
		"y1": {ID: "y1", VideoTitle: "Go", Transcript: "transcript text"},
	}}
	outliner := &stubOutliner{err: errors.New("model unavailable")}
	metrics := &recordingSlideMetrics{}
	worker := NewSlideWorker(states, youtubeByID(sessions), documentByID(sessions), outliner, stubRenderer{}, &memoryObjectStore{}, metrics, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{Payload: SlideJob{Kind: models.SessionYouTube, SessionID: "y1"}})
	require.Error(t, err)
	assert.Equal(t, "transcript text", outliner.gotSummary)
	state := states.states["youtube/y1"]
	assert.Equal(t, models.SlidesFailed, state.Status)
	require.NotNil(t, state.Error)
	assert.Contains(t, *state.Error, "model unavailable")
	assert.Equal(t, []string{"failed"}, metrics.outcomes)

	require.Error(t, worker.Handle(context.Background(), jobs.Job{Payload: "bogus"}))
}
