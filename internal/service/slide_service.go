package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
	"github.com/peerlearn/peerlearn-api/pkg/jobs"
	"github.com/peerlearn/peerlearn-api/pkg/slides"
	"github.com/peerlearn/peerlearn-api/pkg/storage"
)

// SlideJobType tags slide jobs on the queue.
const SlideJobType = "slides"

const (
	slidesQueuedMessage   = "Slide generation started"
	slidesReadyMessage    = "Slides already generated"
	slidesRunningMessage  = "Slide generation already in progress"
	slidesStuckReason     = "Slide generation timed out"
	slideSummaryFallback  = 4000
	slideImageContentType = "image/png"
)

type slideStateStore interface {
	Get(ctx context.Context, kind models.SessionKind, id, userID string) (*models.SlideState, error)
	MarkProcessing(ctx context.Context, kind models.SessionKind, id, userID string, at time.Time) (models.SlidesStatus, bool, error)
	AbandonStart(ctx context.Context, kind models.SessionKind, id string, startedAt time.Time, reason string) (bool, error)
	MarkCompleted(ctx context.Context, kind models.SessionKind, id, pdfURL string, images []string) (bool, error)
	MarkFailed(ctx context.Context, kind models.SessionKind, id, reason string) (bool, error)
	FailStuck(ctx context.Context, kind models.SessionKind, cutoff time.Time, reason string) (int64, error)
}

type slideOutliner interface {
	SlideOutline(ctx context.Context, title, summary string) ([]slides.Slide, error)
}

type slideRenderer interface {
	RenderAll(ctx context.Context, deck []slides.Slide) ([][]byte, error)
	AssemblePDF(title string, images [][]byte) ([]byte, error)
}

type youtubeSessionFinder interface {
	FindByID(ctx context.Context, id string) (*models.YouTubeSession, error)
}

type documentSessionFinder interface {
	FindByID(ctx context.Context, id string) (*models.DocumentSession, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type slideJobObserver interface {
	ObserveSlideJob(outcome string, duration time.Duration)
}

// SlideJob is the queue payload of a slide generation request.
type SlideJob struct {
	Kind      models.SessionKind
	SessionID string
}

// SlideService starts slide jobs and reports their state.
type SlideService struct {
	states slideStateStore
	queue  jobDispatcher
	logger *zap.Logger
	now    func() time.Time
}

// NewSlideService constructs the service. The queue is attached with SetQueue
// because the queue handler is the SlideWorker built from the same stores.
func NewSlideService(states slideStateStore, logger *zap.Logger) *SlideService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlideService{states: states, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// SetQueue attaches the dispatcher used by Start.
func (s *SlideService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

func (s *SlideService) load(ctx context.Context, kind models.SessionKind, id, userID string) (*models.SlideState, error) {
	state, err := s.states.Get(ctx, kind, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slide state")
	}
	if state.Images == nil {
		state.Images = models.JSONList[string]{}
	}
	return state, nil
}

// Start queues slide generation. The returned flag is true when a new job was queued.
// Starts on a processing session are not deduplicated: every request queues its
// own job and the last one to finish owns the stored deck.
func (s *SlideService) Start(ctx context.Context, kind models.SessionKind, id, userID string) (*dto.SlidesResponse, bool, error) {
	state, err := s.load(ctx, kind, id, userID)
	if err != nil {
		return nil, false, err
	}
	switch state.Status {
	case models.SlidesCompleted:
		return &dto.SlidesResponse{SlideState: *state, Message: slidesReadyMessage}, false, nil
	case models.SlidesFailed:
		return nil, false, appErrors.Clone(appErrors.ErrConflict, "Slide generation already failed for this session")
	}
	if s.queue == nil {
		return nil, false, appErrors.Clone(appErrors.ErrInternal, "slide queue is not configured")
	}

	// Postgres keeps microseconds; AbandonStart compares against the stored stamp.
	startedAt := s.now().Truncate(time.Microsecond)
	previous, moved, err := s.states.MarkProcessing(ctx, kind, id, userID, startedAt)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start slide generation")
	}
	if !moved {
		return s.Status(ctx, kind, id, userID)
	}

	job := jobs.Job{ID: id + "/" + uuid.NewString(), Type: SlideJobType, Payload: SlideJob{Kind: kind, SessionID: id}}
	if err := s.queue.Enqueue(job); err != nil {
		if previous == models.SlidesProcessing || errors.Is(err, jobs.ErrDuplicate) {
			// Another job owns the session; leave it running.
			s.logger.Warn("extra slide job not queued", zap.String("session_id", id), zap.Error(err))
			return s.running(ctx, kind, id, userID)
		}
		if _, markErr := s.states.AbandonStart(context.WithoutCancel(ctx), kind, id, startedAt, "failed to enqueue slide job"); markErr != nil {
			s.logger.Warn("mark slides failed", zap.String("session_id", id), zap.Error(markErr))
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue slide job")
	}
	state.Status = models.SlidesProcessing
	state.Error = nil
	state.StartedAt = &startedAt
	return &dto.SlidesResponse{SlideState: *state, Message: slidesQueuedMessage}, true, nil
}

func (s *SlideService) running(ctx context.Context, kind models.SessionKind, id, userID string) (*dto.SlidesResponse, bool, error) {
	res, _, err := s.Status(ctx, kind, id, userID)
	if err != nil {
		return nil, false, err
	}
	res.Message = slidesRunningMessage
	return res, false, nil
}

// Status returns the current slide state.
func (s *SlideService) Status(ctx context.Context, kind models.SessionKind, id, userID string) (*dto.SlidesResponse, bool, error) {
	state, err := s.load(ctx, kind, id, userID)
	if err != nil {
		return nil, false, err
	}
	return &dto.SlidesResponse{SlideState: *state}, false, nil
}

// FailStuck fails jobs that stayed in processing longer than maxAge.
func (s *SlideService) FailStuck(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge)
	var total int64
	for _, kind := range []models.SessionKind{models.SessionYouTube, models.SessionDocument} {
		n, err := s.states.FailStuck(ctx, kind, cutoff, slidesStuckReason)
		if err != nil {
			return total, err
		}
		total += n
	}
	if total > 0 {
		s.logger.Info("failed stuck slide jobs", zap.Int64("count", total))
	}
	return total, nil
}

// SlideWorker runs slide jobs: outline, render, assemble, upload.
type SlideWorker struct {
	states    slideStateStore
	youtube   youtubeSessionFinder
	documents documentSessionFinder
	outliner  slideOutliner
	renderer  slideRenderer
	store     storage.ObjectStore
	metrics   slideJobObserver
	logger    *zap.Logger
}

// NewSlideWorker constructs the worker.
func NewSlideWorker(states slideStateStore, youtube youtubeSessionFinder, documents documentSessionFinder, outliner slideOutliner, renderer slideRenderer, store storage.ObjectStore, metrics slideJobObserver, logger *zap.Logger) *SlideWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlideWorker{
		states:    states,
		youtube:   youtube,
		documents: documents,
		outliner:  outliner,
		renderer:  renderer,
		store:     store,
		metrics:   metrics,
		logger:    logger,
	}
}

// Handle processes a queue job. Failures are recorded on the session and never retried.
func (w *SlideWorker) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(SlideJob)
	if !ok {
		return fmt.Errorf("unexpected slide job payload %T", job.Payload)
	}
	started := time.Now()
	err := w.generate(ctx, payload)
	outcome := "completed"
	if err != nil {
		outcome = "failed"
		w.logger.Warn("slide generation failed", zap.String("session_id", payload.SessionID), zap.String("kind", string(payload.Kind)), zap.Error(err))
		if _, markErr := w.states.MarkFailed(context.WithoutCancel(ctx), payload.Kind, payload.SessionID, err.Error()); markErr != nil {
			w.logger.Error("mark slides failed", zap.String("session_id", payload.SessionID), zap.Error(markErr))
		}
	}
	if w.metrics != nil {
		w.metrics.ObserveSlideJob(outcome, time.Since(started))
	}
	return err
}

func (w *SlideWorker) source(ctx context.Context, job SlideJob) (title, summary string, err error) {
	switch job.Kind {
	case models.SessionYouTube:
		session, err := w.youtube.FindByID(ctx, job.SessionID)
		if err != nil {
			return "", "", fmt.Errorf("load youtube session: %w", err)
		}
		return session.VideoTitle, firstNonEmpty(session.DetailedSummary, session.ShortSummary, truncateRunes(session.Transcript, slideSummaryFallback)), nil
	case models.SessionDocument:
		session, err := w.documents.FindByID(ctx, job.SessionID)
		if err != nil {
			return "", "", fmt.Errorf("load document session: %w", err)
		}
		return session.Title, firstNonEmpty(session.DetailedSummary, session.ShortSummary, truncateRunes(session.Content, slideSummaryFallback)), nil
	default:
		return "", "", fmt.Errorf("unknown session kind %q", job.Kind)
	}
}

func (w *SlideWorker) generate(ctx context.Context, job SlideJob) error {
	title, summary, err := w.source(ctx, job)
	if err != nil {
		return err
	}
	if summary == "" {
		return fmt.Errorf("session has no content to build slides from")
	}
	deck, err := w.outliner.SlideOutline(ctx, title, summary)
	if err != nil {
		return fmt.Errorf("outline slides: %w", err)
	}
	images, err := w.renderer.RenderAll(ctx, deck)
	if err != nil {
		return fmt.Errorf("render slides: %w", err)
	}
	pdf, err := w.renderer.AssemblePDF(title, images)
	if err != nil {
		return err
	}

	prefix := fmt.Sprintf("slides/%s/%s", job.Kind, job.SessionID)
	urls := make([]string, 0, len(images))
	for i, img := range images {
		url, err := storage.PutBytes(ctx, w.store, fmt.Sprintf("%s/slide_%d.png", prefix, i+1), img, slideImageContentType)
		if err != nil {
			return fmt.Errorf("store slide image: %w", err)
		}
		urls = append(urls, url)
	}
	pdfURL, err := storage.PutBytes(ctx, w.store, prefix+"/slides.pdf", pdf, "application/pdf")
	if err != nil {
		return fmt.Errorf("store slide pdf: %w", err)
	}
	moved, err := w.states.MarkCompleted(ctx, job.Kind, job.SessionID, pdfURL, urls)
	if err != nil {
		return err
	}
	if !moved {
		w.logger.Info("slide job finished after the session left processing", zap.String("session_id", job.SessionID))
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
