package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
	"github.com/peerlearn/peerlearn-api/pkg/export"
)

const exportPrefix = "exports"

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	CleanupOlderThan(prefix string, ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(deck export.Deck) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	ResultTTL time.Duration
}

// ExportService renders study sessions into downloadable documents and keeps a
// short lived copy on local disk.
type ExportService struct {
	storage fileStorage
	csv     csvRenderer
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService. storage may be nil to skip the disk copy.
func NewExportService(storage fileStorage, cfg ExportConfig, logger *zap.Logger, csv csvRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	return &ExportService{storage: storage, csv: csv, logger: logger, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// YouTubeSession renders summaries, chat history and transcript in the requested format.
func (s *ExportService) YouTubeSession(ctx context.Context, session *models.YouTubeSession, rawFormat string) (*dto.ExportFile, error) {
	format, ok := export.ParseFormat(rawFormat)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Format must be one of: pdf, docx, markdown")
	}
	report := export.Report{
		Heading: session.VideoTitle,
		Info: []export.Field{
			{Label: "Video URL", Value: session.VideoURL},
			{Label: "Duration", Value: export.FormatDuration(session.VideoDuration)},
			{Label: "Created", Value: session.CreatedAt.UTC().Format("2006-01-02 15:04")},
		},
		Sections: []export.Section{
			{Heading: "Quick Summary", Body: session.ShortSummary},
			{Heading: "Detailed Summary", Body: session.DetailedSummary},
		},
		Transcript:  session.Transcript,
		GeneratedAt: s.now(),
	}
	for _, entry := range session.ChatHistory {
		report.Chat = append(report.Chat, export.ChatTurn{Role: entry.Role, Content: entry.Content, Timestamp: entry.Timestamp})
	}
	return s.render(ctx, report, format, session.VideoTitle)
}

// DocumentSession renders a document session in the requested format.
func (s *ExportService) DocumentSession(ctx context.Context, session *models.DocumentSession, rawFormat string) (*dto.ExportFile, error) {
	format, ok := export.ParseFormat(rawFormat)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Format must be one of: pdf, docx, markdown")
	}
	report := export.Report{
		Heading: session.Title,
		Info:    []export.Field{{Label: "Created", Value: session.CreatedAt.UTC().Format("2006-01-02 15:04")}},
		Sections: []export.Section{
			{Heading: "Quick Summary", Body: session.ShortSummary},
			{Heading: "Detailed Summary", Body: session.DetailedSummary},
		},
		GeneratedAt: s.now(),
	}
	if session.FileName != nil {
		report.Info = append(report.Info, export.Field{Label: "Source File", Value: *session.FileName})
	}
	for _, entry := range session.ChatHistory {
		report.Chat = append(report.Chat, export.ChatTurn{Role: entry.Role, Content: entry.Content, Timestamp: entry.Timestamp})
	}
	return s.render(ctx, report, format, session.Title)
}

func (s *ExportService) render(_ context.Context, report export.Report, format export.Format, title string) (*dto.ExportFile, error) {
	renderer, err := export.RendererFor(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Format must be one of: pdf, docx, markdown")
	}
	payload, err := renderer.Render(report)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	filename := fmt.Sprintf("%s_summary.%s", export.SafeFilename(title, "session"), format.Extension())
	s.keepCopy(filename, payload)
	return &dto.ExportFile{Filename: filename, ContentType: format.ContentType(), Data: payload}, nil
}

// Flashcards renders cards as CSV with question, answer and explanation columns.
func (s *ExportService) Flashcards(_ context.Context, title string, cards []models.Flashcard) (*dto.ExportFile, error) {
	if len(cards) == 0 {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "No flashcards available for this session")
	}
	deck := export.Deck{Cards: make([]export.Card, 0, len(cards))}
	for _, card := range cards {
		deck.Cards = append(deck.Cards, export.Card{Question: card.Question, Answer: card.Answer, Explanation: card.Explanation})
	}
	payload, err := s.csv.Render(deck)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render flashcards")
	}
	filename := export.SafeFilename(title, "session") + "_flashcards.csv"
	s.keepCopy(filename, payload)
	return &dto.ExportFile{Filename: filename, ContentType: "text/csv", Data: payload}, nil
}

func (s *ExportService) keepCopy(filename string, payload []byte) {
	if s.storage == nil {
		return
	}
	stamp := s.now().Format("20060102_150405")
	name := path.Join(exportPrefix, stamp+"_"+strings.ReplaceAll(filename, " ", "_"))
	if _, err := s.storage.Save(name, payload); err != nil {
		s.logger.Warn("store export copy failed", zap.String("file", name), zap.Error(err))
	}
}

// Cleanup removes export copies older than ttl (the configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if s.storage == nil {
		return nil, nil
	}
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(exportPrefix, ttl)
}
