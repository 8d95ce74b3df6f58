package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/models"
	"github.com/peerlearn/peerlearn-api/pkg/ai"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
	applog "github.com/peerlearn/peerlearn-api/pkg/logger"
)

const moderationPrompt = `You are a content moderator for PeerLearn, an educational platform for students.
Decide whether the message is appropriate for a classroom chat.
Inappropriate content includes harassment, bullying, spam, personal attacks, offensive language
and anything unsuitable for an educational environment.
Return only a JSON object: {"is_appropriate": true|false, "reason": "short explanation", "confidence": 0.0-1.0}`

// ModerationService classifies chat content before it is stored. It fails open.
type ModerationService struct {
	llm     ai.Completer
	model   string
	metrics generationRecorder
	logger  *zap.Logger
}

// NewModerationService constructs the gate. metrics may be nil.
func NewModerationService(llm ai.Completer, model string, metrics generationRecorder, logger *zap.Logger) *ModerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModerationService{llm: llm, model: model, metrics: metrics, logger: logger}
}

// Moderate returns the verdict for text. Upstream and parse failures allow the message.
func (s *ModerationService) Moderate(ctx context.Context, text string) models.ModerationVerdict {
	out, err := s.llm.Complete(ctx, ai.ChatRequest{
		Model: s.model,
		Messages: []ai.Message{
			ai.System(moderationPrompt),
			ai.User("Moderate this message: '" + text + "'"),
		},
		Temperature: 0.1,
		MaxTokens:   150,
		JSONMode:    true,
	})
	if err != nil {
		s.observe("error")
		applog.For(ctx, s.logger).Warn("moderation unavailable, allowing message", zap.Error(err))
		return models.ModerationVerdict{IsAppropriate: true, Reason: "Moderation service unavailable", Confidence: 0.0}
	}

	var parsed struct {
		IsAppropriate *bool   `json:"is_appropriate"`
		Reason        string  `json:"reason"`
		Confidence    float64 `json:"confidence"`
	}
	if err := ai.DecodeObject(out, &parsed); err != nil || parsed.IsAppropriate == nil {
		s.observe("invalid")
		applog.For(ctx, s.logger).Warn("moderation result unparseable, allowing message", zap.String("raw", out))
		return models.ModerationVerdict{IsAppropriate: true, Reason: "Unable to parse moderation result", Confidence: 0.5}
	}
	s.observe("success")
	return models.ModerationVerdict{
		IsAppropriate: *parsed.IsAppropriate,
		Reason:        strings.TrimSpace(parsed.Reason),
		Confidence:    parsed.Confidence,
	}
}

// Check moderates text and converts a rejection into a 400 error.
func (s *ModerationService) Check(ctx context.Context, text string) error {
	verdict := s.Moderate(ctx, text)
	if verdict.IsAppropriate {
		return nil
	}
	return appErrors.Clone(appErrors.ErrBadRequest, "Message content inappropriate: "+verdict.Reason)
}

func (s *ModerationService) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordGeneration("moderation", outcome)
	}
}
