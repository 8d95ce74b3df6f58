package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	"github.com/peerlearn/peerlearn-api/pkg/ai"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
	applog "github.com/peerlearn/peerlearn-api/pkg/logger"
	"github.com/peerlearn/peerlearn-api/pkg/media"
)

const (
	defaultFlashcards    = 10
	maxFlashcards        = 25
	defaultRelatedVideos = 8
	maxRelatedVideos     = 10

	flashcardsSoftFailure    = "Flashcards not available right now. Please try again later or with a different video."
	relatedVideosSoftFailure = "Related videos not available right now. Please try again later."
	noSummariesMessage       = "No summaries available for this session. Please regenerate summaries first."
)

type youtubeSessionStore interface {
	Create(ctx context.Context, s *models.YouTubeSession) error
	FindForUser(ctx context.Context, id, userID string) (*models.YouTubeSession, error)
	ListForUser(ctx context.Context, userID string) ([]models.YouTubeSession, error)
	Delete(ctx context.Context, id, userID string) (bool, error)
	AppendChat(ctx context.Context, id string, entries ...models.ChatEntry) error
	UpdateSummaries(ctx context.Context, id, short, detailed string) error
	SaveFlashcards(ctx context.Context, id string, cards []models.Flashcard) error
	SaveRelatedVideos(ctx context.Context, id string, videos []models.RelatedVideo) error
}

type videoSource interface {
	Info(ctx context.Context, url string) (media.VideoInfo, error)
	DownloadAudio(ctx context.Context, url, dir string) (string, error)
}

type audioTranscriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

type studyAssistant interface {
	Summaries(ctx context.Context, source, title string) (short, detailed string, fellBack bool)
	Answer(ctx context.Context, question, source, title string, history []models.ChatEntry) (string, error)
	Flashcards(ctx context.Context, short, detailed, title string, count int) ([]models.Flashcard, error)
	ExplainFlashcard(ctx context.Context, question, answer, source, title string) string
	RelatedVideos(ctx context.Context, short, detailed, title string, count int) ([]models.RelatedVideo, error)
	Quiz(ctx context.Context, source, title string, count int) ([]models.QuizQuestion, error)
}

type sessionExporter interface {
	YouTubeSession(ctx context.Context, session *models.YouTubeSession, format string) (*dto.ExportFile, error)
	DocumentSession(ctx context.Context, session *models.DocumentSession, format string) (*dto.ExportFile, error)
	Flashcards(ctx context.Context, title string, cards []models.Flashcard) (*dto.ExportFile, error)
}

// YouTubeConfig bounds the video pipeline.
type YouTubeConfig struct {
	WorkDir         string
	MaxDuration     time.Duration
	PipelineTimeout time.Duration
}

// YouTubeService builds and serves AI study sessions from YouTube videos.
type YouTubeService struct {
	sessions    youtubeSessionStore
	videos      videoSource
	transcriber audioTranscriber
	assistant   studyAssistant
	exporter    sessionExporter
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         YouTubeConfig
	now         func() time.Time
}

// NewYouTubeService constructs the service.
func NewYouTubeService(sessions youtubeSessionStore, videos videoSource, transcriber audioTranscriber, assistant studyAssistant, exporter sessionExporter, validate *validator.Validate, logger *zap.Logger, cfg YouTubeConfig) *YouTubeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 30 * time.Minute
	}
	if cfg.PipelineTimeout <= 0 {
		cfg.PipelineTimeout = 300 * time.Second
	}
	return &YouTubeService{
		sessions:    sessions,
		videos:      videos,
		transcriber: transcriber,
		assistant:   assistant,
		exporter:    exporter,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create runs the video pipeline under the configured timeout and stores the session.
func (s *YouTubeService) Create(ctx context.Context, userID string, req dto.CreateYouTubeSessionRequest) (*models.YouTubeSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Invalid YouTube URL")
	}
	videoID, ok := media.ExtractVideoID(req.VideoURL)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Invalid YouTube URL")
	}

	pipelineCtx, cancel := context.WithTimeout(ctx, s.cfg.PipelineTimeout)
	defer cancel()

	session, err := s.process(pipelineCtx, req.VideoURL, videoID)
	if err != nil {
		if errors.Is(pipelineCtx.Err(), context.DeadlineExceeded) {
			return nil, appErrors.Clone(appErrors.ErrRequestTimeout, "Video processing timed out. Please try with a shorter video.")
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrBadRequest.Code, appErrors.ErrBadRequest.Status, "Processing failed: "+err.Error())
	}

	session.UserID = userID
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save session")
	}
	s.logger.Info("youtube session created", zap.String("session_id", session.ID), zap.String("video_id", videoID))
	return session, nil
}

func (s *YouTubeService) process(ctx context.Context, url, videoID string) (*models.YouTubeSession, error) {
	log := applog.For(ctx, s.logger).With(zap.String("video_id", videoID))
	info, err := s.videos.Info(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("video info unavailable, using fallback", zap.Error(err))
		info = media.FallbackInfo(videoID)
	}
	if !info.Fallback && time.Duration(info.Duration)*time.Second > s.cfg.MaxDuration {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Video is too long. Please use videos under 30 minutes.")
	}

	dir, err := os.MkdirTemp(s.cfg.WorkDir, "yt-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	audio, err := s.videos.DownloadAudio(ctx, url, dir)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("audio download failed", zap.Error(err))
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Could not download video audio")
	}

	transcript, err := s.transcriber.Transcribe(ctx, audio)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("transcription failed, using placeholder", zap.Error(err))
		var size int64
		if st, statErr := os.Stat(audio); statErr == nil {
			size = st.Size()
		}
		transcript = media.FallbackTranscript(size)
	}

	short, detailed, _ := s.assistant.Summaries(ctx, transcript, info.Title)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &models.YouTubeSession{
		VideoURL:        url,
		VideoID:         videoID,
		VideoTitle:      info.Title,
		VideoDuration:   info.Duration,
		Transcript:      transcript,
		ShortSummary:    short,
		DetailedSummary: detailed,
		ChatHistory:     models.JSONList[models.ChatEntry]{},
		Flashcards:      models.JSONList[models.Flashcard]{},
		RelatedVideos:   models.JSONList[models.RelatedVideo]{},
		SlideState:      models.SlideState{Status: models.SlidesPending, Images: models.JSONList[string]{}},
	}, nil
}

// List returns the caller's sessions, newest first.
func (s *YouTubeService) List(ctx context.Context, userID string) ([]models.YouTubeSession, error) {
	items, err := s.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	if items == nil {
		items = []models.YouTubeSession{}
	}
	return items, nil
}

// Get returns one of the caller's sessions.
func (s *YouTubeService) Get(ctx context.Context, id, userID string) (*models.YouTubeSession, error) {
	session, err := s.sessions.FindForUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// Delete removes one of the caller's sessions.
func (s *YouTubeService) Delete(ctx context.Context, id, userID string) error {
	deleted, err := s.sessions.Delete(ctx, id, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "Session not found")
	}
	return nil
}

// Ask answers a question from the transcript and appends both turns to the history.
func (s *YouTubeService) Ask(ctx context.Context, id, userID string, req dto.AskRequest) (*dto.AskResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid question")
	}
	session, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if session.Transcript == "" {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "No transcript available for this session")
	}
	answer, err := s.assistant.Answer(ctx, req.Question, session.Transcript, session.VideoTitle, session.ChatHistory)
	if err != nil {
		s.logger.Warn("session answer failed", zap.String("session_id", id), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to generate answer")
	}
	return appendExchange(ctx, s.sessions.AppendChat, session.ID, req.Question, answer, s.now())
}

func appendExchange(ctx context.Context, appendFn func(context.Context, string, ...models.ChatEntry) error, sessionID, question, answer string, at time.Time) (*dto.AskResponse, error) {
	if err := appendFn(ctx, sessionID,
		models.ChatEntry{Role: "user", Content: question, Timestamp: at},
		models.ChatEntry{Role: "assistant", Content: answer, Timestamp: at},
	); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save chat history")
	}
	return &dto.AskResponse{Question: question, Answer: answer, Timestamp: at}, nil
}

// RegenerateSummaries rebuilds both summaries from the transcript.
func (s *YouTubeService) RegenerateSummaries(ctx context.Context, id, userID string) (*dto.SummariesResponse, error) {
	session, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if session.Transcript == "" {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "No transcript available")
	}
	short, detailed, fellBack := s.assistant.Summaries(ctx, session.Transcript, session.VideoTitle)
	if err := s.sessions.UpdateSummaries(ctx, session.ID, short, detailed); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to regenerate summaries")
	}
	return &dto.SummariesResponse{ShortSummary: short, DetailedSummary: detailed, Message: summariesMessage(fellBack)}, nil
}

func summariesMessage(fellBack bool) string {
	if fellBack {
		return "Summary service unavailable, fallback summaries stored"
	}
	return "Summaries regenerated successfully"
}

// Export renders the session as pdf, docx or markdown.
func (s *YouTubeService) Export(ctx context.Context, id, userID, format string) (*dto.ExportFile, error) {
	session, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.exporter.YouTubeSession(ctx, session, format)
}

// Flashcards generates and stores study cards from the summaries.
func (s *YouTubeService) Flashcards(ctx context.Context, id, userID string, count int) (*dto.FlashcardsResponse, error) {
	session, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if session.Transcript == "" {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "No transcript available for this session")
	}
	if session.ShortSummary == "" || session.DetailedSummary == "" {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, noSummariesMessage)
	}
	cards, err := s.assistant.Flashcards(ctx, session.ShortSummary, session.DetailedSummary, session.VideoTitle, clampCount(count, defaultFlashcards, maxFlashcards))
	return saveFlashcards(ctx, s.logger, session.ID, cards, err, s.sessions.SaveFlashcards)
}

func saveFlashcards(ctx context.Context, logger *zap.Logger, sessionID string, cards []models.Flashcard, genErr error, save func(context.Context, string, []models.Flashcard) error) (*dto.FlashcardsResponse, error) {
	if genErr != nil {
		if ai.IsGenerationError(genErr) {
			logger.Warn("flashcard generation failed", zap.String("session_id", sessionID), zap.Error(genErr))
			return &dto.FlashcardsResponse{Flashcards: []models.Flashcard{}, Count: 0, Message: flashcardsSoftFailure, Error: genErr.Error()}, nil
		}
		return nil, appErrors.Wrap(genErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "An unexpected error occurred while generating flashcards")
	}
	if err := save(ctx, sessionID, cards); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save flashcards")
	}
	return &dto.FlashcardsResponse{Flashcards: cards, Count: len(cards)}, nil
}

func clampCount(count, def, max int) int {
	if count <= 0 {
		return def
	}
	if count > max {
		return max
	}
	return count
}

// ExportFlashcards streams the stored cards as CSV.
func (s *YouTubeService) ExportFlashcards(ctx context.Context, id, userID string) (*dto.ExportFile, error) {
	session, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.exporter.Flashcards(ctx, session.VideoTitle, session.Flashcards)
}

// Explain elaborates on one flashcard using the detailed summary, or the transcript when there is none.
func (s *YouTubeService) Explain(ctx context.Context, id, userID string, req dto.ExplainRequest) (*dto.ExplainResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid flashcard")
	}
	session, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	source := session.DetailedSummary
	if source == "" {
		source = session.Transcript
	}
	if source == "" {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "No content available for this session")
	}
	explanation := s.assistant.ExplainFlashcard(ctx, req.Question, req.Answer, source, session.VideoTitle)
	return &dto.ExplainResponse{Explanation: explanation}, nil
}

// RelatedVideos suggests and stores follow-up videos.
func (s *YouTubeService) RelatedVideos(ctx context.Context, id, userID string, count int) (*dto.RelatedVideosResponse, error) {
	session, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if session.ShortSummary == "" || session.DetailedSummary == "" {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, noSummariesMessage)
	}
	videos, err := s.assistant.RelatedVideos(ctx, session.ShortSummary, session.DetailedSummary, session.VideoTitle, clampCount(count, defaultRelatedVideos, maxRelatedVideos))
	if err != nil {
		if ai.IsGenerationError(err) {
			s.logger.Warn("related video generation failed", zap.String("session_id", id), zap.Error(err))
			return &dto.RelatedVideosResponse{RelatedVideos: []models.RelatedVideo{}, Count: 0, Message: relatedVideosSoftFailure, Error: err.Error()}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "An unexpected error occurred while generating related videos")
	}
	if err := s.sessions.SaveRelatedVideos(ctx, session.ID, videos); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save related videos")
	}
	return &dto.RelatedVideosResponse{RelatedVideos: videos, Count: len(videos)}, nil
}
