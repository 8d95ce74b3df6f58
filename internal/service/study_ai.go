package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/models"
	"github.com/peerlearn/peerlearn-api/pkg/ai"
	"github.com/peerlearn/peerlearn-api/pkg/media"
	"github.com/peerlearn/peerlearn-api/pkg/slides"
)

const (
	summaryAttempts     = 3
	flashcardSourceMax  = 25000
	explainContextMax   = 15000
	answerHistoryWindow = 5
	roomSummaryWindow   = 50
	maxNameSuggestions  = 5

	// RoomSummaryFallback is returned when the assistant cannot summarise a room.
	RoomSummaryFallback = "Unable to generate summary at this time. Please try again later."
	missingExplanation  = "See video summary for details."
)

var (
	classroomNameFallback = []string{"Study Group", "Learning Hub", "Knowledge Base", "Study Circle", "Academic Team"}
	roomNameFallback      = []string{"General Discussion", "Study Notes", "Q&A Hub", "Resources", "Homework Help"}
)

type generationRecorder interface {
	RecordGeneration(operation, outcome string)
}

// StudyAIConfig selects models and retry pacing.
type StudyAIConfig struct {
	ChatModel string
	// RetryBase is the first backoff delay; later attempts double it.
	RetryBase time.Duration
}

// StudyAI wraps the language model for every generation used by PeerLearn.
type StudyAI struct {
	llm     ai.Completer
	metrics generationRecorder
	logger  *zap.Logger
	config  StudyAIConfig
}

// NewStudyAI constructs the assistant. metrics may be nil.
func NewStudyAI(llm ai.Completer, metrics generationRecorder, logger *zap.Logger, config StudyAIConfig) *StudyAI {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RetryBase < 0 {
		config.RetryBase = 0
	}
	return &StudyAI{llm: llm, metrics: metrics, logger: logger, config: config}
}

func (a *StudyAI) record(operation string, err error) {
	if a.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case ai.IsGenerationError(err):
		outcome = "invalid"
	case err != nil:
		outcome = "error"
	}
	a.metrics.RecordGeneration(operation, outcome)
}

func (a *StudyAI) complete(ctx context.Context, operation string, req ai.ChatRequest) (string, error) {
	if req.Model == "" {
		req.Model = a.config.ChatModel
	}
	out, err := a.llm.Complete(ctx, req)
	if err == nil && strings.TrimSpace(out) == "" {
		err = errors.New("empty completion")
	}
	a.record(operation, err)
	return out, err
}

func (a *StudyAI) completeWithRetry(ctx context.Context, operation string, req ai.ChatRequest) (string, error) {
	return ai.Retry(ctx, summaryAttempts, a.config.RetryBase, func(ctx context.Context) (string, error) {
		return a.complete(ctx, operation, req)
	})
}

// SummarizeRoom turns chat lines ("name: content") into study notes.
func (a *StudyAI) SummarizeRoom(ctx context.Context, roomName string, lines []string) string {
	if len(lines) > roomSummaryWindow {
		lines = lines[len(lines)-roomSummaryWindow:]
	}
	out, err := a.complete(ctx, "room_summary", ai.ChatRequest{
		Messages: []ai.Message{
			ai.System("You summarise classroom chat discussions for students. Extract the key topics, questions asked, " +
				"answers given and any action items. Format the result as concise study notes with headings and bullet points."),
			ai.User(fmt.Sprintf("Room: %s\n\nConversation:\n%s", roomName, strings.Join(lines, "\n"))),
		},
		Temperature: 0.3,
		MaxTokens:   1000,
	})
	if err != nil {
		a.logger.Warn("room summary failed", zap.String("room", roomName), zap.Error(err))
		return RoomSummaryFallback
	}
	return strings.TrimSpace(out)
}

// SuggestClassroomNames proposes up to five classroom names for a description.
func (a *StudyAI) SuggestClassroomNames(ctx context.Context, description string) []string {
	out, err := a.complete(ctx, "classroom_names", ai.ChatRequest{
		Messages: []ai.Message{
			ai.System("Suggest 5 short, creative names for a student study classroom. Return one name per line without numbering or quotes."),
			ai.User("Classroom description: " + description),
		},
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil {
		a.logger.Warn("classroom name suggestion failed", zap.Error(err))
		return append([]string(nil), classroomNameFallback...)
	}
	return suggestionLines(out, classroomNameFallback)
}

// SuggestRoomNames proposes up to five room names for a classroom.
func (a *StudyAI) SuggestRoomNames(ctx context.Context, classroomName, subject string) []string {
	out, err := a.complete(ctx, "room_names", ai.ChatRequest{
		Messages: []ai.Message{
			ai.System("Suggest 5 chat room names for a study classroom, such as topic or activity channels. Return one name per line without numbering or quotes."),
			ai.User(fmt.Sprintf("Classroom: %s\nSubject: %s", classroomName, subject)),
		},
		Temperature: 0.6,
		MaxTokens:   150,
	})
	if err != nil {
		a.logger.Warn("room name suggestion failed", zap.Error(err))
		return append([]string(nil), roomNameFallback...)
	}
	return suggestionLines(out, roomNameFallback)
}

func suggestionLines(out string, fallback []string) []string {
	names := make([]string, 0, maxNameSuggestions)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")
		line = strings.Trim(line, `"'`)
		if line == "" {
			continue
		}
		names = append(names, line)
		if len(names) == maxNameSuggestions {
			break
		}
	}
	if len(names) == 0 {
		return append([]string(nil), fallback...)
	}
	return names
}

// Summaries produces the short bullet summary and the detailed markdown summary of a source text.
// Placeholder transcripts and exhausted retries yield the fallback pair, reported by fellBack.
func (a *StudyAI) Summaries(ctx context.Context, source, title string) (short, detailed string, fellBack bool) {
	if media.IsFallbackTranscript(source) {
		short, detailed = FallbackSummaries(title)
		return short, detailed, true
	}
	short, err := a.completeWithRetry(ctx, "summary_short", ai.ChatRequest{
		Messages: []ai.Message{
			ai.System("You create short summaries of educational content. Write 5-7 markdown bullet points covering the main ideas. Be concise and factual."),
			ai.User(fmt.Sprintf("Title: %s\n\nContent:\n%s", title, source)),
		},
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		a.logger.Warn("short summary failed", zap.String("title", title), zap.Error(err))
		short, detailed = FallbackSummaries(title)
		return short, detailed, true
	}
	detailed, err = a.completeWithRetry(ctx, "summary_detailed", ai.ChatRequest{
		Messages: []ai.Message{
			ai.System("You create detailed study summaries of educational content. Use markdown headings for each major topic, " +
				"explain every key concept and definition, include examples from the content and end with key takeaways."),
			ai.User(fmt.Sprintf("Title: %s\n\nContent:\n%s", title, source)),
		},
		Temperature: 0.3,
		MaxTokens:   2000,
	})
	if err != nil {
		a.logger.Warn("detailed summary failed", zap.String("title", title), zap.Error(err))
		short, detailed = FallbackSummaries(title)
		return short, detailed, true
	}
	return strings.TrimSpace(short), strings.TrimSpace(detailed), false
}

// FallbackSummaries is the pair stored when summarisation is unavailable.
func FallbackSummaries(title string) (string, string) {
	short := strings.Join([]string{
		"• Video processing completed successfully for: " + title,
		"• Audio download and extraction worked correctly",
		"• Transcription service is temporarily unavailable",
		"• You can still explore the chat and export features",
		"• Please regenerate the summaries later",
	}, "\n")
	detailed := fmt.Sprintf(`# YouTube Video Summary: %s

## Processing Status
The video was processed, but the transcription or summarisation service was temporarily unavailable.

### Completed Steps
- **Video Information Extraction**: metadata retrieved
- **Audio Download**: audio downloaded and processed

### Temporary Issue
- **Transcription Service**: the AI service could not be reached

## What You Can Do
1. Regenerate the summaries in a few minutes
2. Explore the chat interface and export features
3. Report the issue if it persists`, title)
	return short, detailed
}

// Answer replies to a question about a session using its source text and recent history.
func (a *StudyAI) Answer(ctx context.Context, question, source, title string, history []models.ChatEntry) (string, error) {
	if len(history) > answerHistoryWindow {
		history = history[len(history)-answerHistoryWindow:]
	}
	messages := []ai.Message{
		ai.System(fmt.Sprintf("You are a study assistant answering questions about %q. Answer using the provided content. "+
			"If the content does not cover the question, say so and give the best general explanation you can.\n\nContent:\n%s", title, source)),
	}
	for _, entry := range history {
		messages = append(messages, ai.Message{Role: entry.Role, Content: entry.Content})
	}
	messages = append(messages, ai.User(question))

	out, err := a.completeWithRetry(ctx, "answer", ai.ChatRequest{Messages: messages, Temperature: 0.3, MaxTokens: 1000})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Flashcards extracts concept cards from the summaries. Transport failures and empty
// results fall back to the fixed cards; an unrecoverable response shape is a GenerationError.
func (a *StudyAI) Flashcards(ctx context.Context, short, detailed, title string, count int) ([]models.Flashcard, error) {
	source := fmt.Sprintf("QUICK OVERVIEW:\n%s\n\nDETAILED CONCEPTS:\n%s", short, detailed)
	if utf8.RuneCountInString(source) > flashcardSourceMax {
		source = truncateRunes(source, flashcardSourceMax) + "...(truncated)"
	}
	out, err := a.complete(ctx, "flashcards", ai.ChatRequest{
		Messages: []ai.Message{
			ai.System(fmt.Sprintf(`You extract flashcards strictly from the provided summary text.
Create one card for every concept, definition, term or key insight the text states.
The question asks about the concept, the answer is the fact stated in the text and the explanation gives its context.
Do not use outside knowledge. Produce at most %d cards.
Return only a JSON object: {"flashcards":[{"question":"...","answer":"...","explanation":"..."}]}`, count)),
			ai.User(fmt.Sprintf("Video Title: %s\n\nSUMMARY TEXT:\n%s", title, source)),
		},
		Temperature: 0.3,
		MaxTokens:   4000,
		JSONMode:    true,
	})
	if err != nil {
		a.logger.Warn("flashcard generation unavailable, using fallback cards", zap.Error(err))
		return FallbackFlashcards(title), nil
	}

	raw, err := ai.DecodeList[models.Flashcard](out, "flashcards")
	if err != nil {
		genErr := &ai.GenerationError{Operation: "flashcards", Reason: "response did not match the flashcard schema", Err: err}
		a.record("flashcards", genErr)
		return nil, genErr
	}
	cards := make([]models.Flashcard, 0, len(raw))
	for _, card := range raw {
		card.Question = strings.TrimSpace(card.Question)
		card.Answer = strings.TrimSpace(card.Answer)
		if card.Question == "" || card.Answer == "" {
			continue
		}
		if strings.TrimSpace(card.Explanation) == "" {
			card.Explanation = missingExplanation
		}
		cards = append(cards, card)
		if count > 0 && len(cards) == count {
			break
		}
	}
	if len(cards) == 0 {
		return FallbackFlashcards(title), nil
	}
	return cards, nil
}

// FallbackFlashcards are the fixed cards used when generation yields nothing.
func FallbackFlashcards(title string) []models.Flashcard {
	return []models.Flashcard{
		{
			Question:    fmt.Sprintf("What is the main topic of '%s'?", title),
			Answer:      "The video covers fundamental principles and key ideas in this subject area.",
			Explanation: "This flashcard was automatically generated because the AI could not process the specific details. Please try regenerating the flashcards.",
		},
		{
			Question:    "What are the core principles explained in this video?",
			Answer:      "Several important principles and theories are presented and explained.",
			Explanation: "Flashcard generation encountered an issue. Please regenerate for concept-focused study materials.",
		},
		{
			Question:    "What key terminology is introduced?",
			Answer:      "Key terms and definitions form the foundation of understanding this topic.",
			Explanation: "Review the video summary to identify critical terminology and concepts.",
		},
		{
			Question:    "How can the concepts from this video be applied?",
			Answer:      "The concepts have practical applications in various real-world contexts.",
			Explanation: "Consider real-world scenarios where this knowledge is relevant.",
		},
		{
			Question:    "What is the conclusion of the video?",
			Answer:      "The video concludes by summarizing the main points and their significance.",
			Explanation: "Review the end of the video or the summary for the specific conclusion.",
		},
	}
}

// ExplainFlashcard elaborates on a card. It never fails; the fallback text is returned instead.
func (a *StudyAI) ExplainFlashcard(ctx context.Context, question, answer, source, title string) string {
	source = truncateRunes(source, explainContextMax)
	out, err := a.complete(ctx, "explain_flashcard", ai.ChatRequest{
		Messages: []ai.Message{
			ai.System("You are a patient tutor. Explain why the answer to a flashcard is correct, using the provided context. " +
				"Give a clear explanation, one example and a tip for remembering it."),
			ai.User(fmt.Sprintf("Video: %s\n\nContext:\n%s\n\nQuestion: %s\nAnswer: %s", title, source, question, answer)),
		},
		Temperature: 0.6,
		MaxTokens:   800,
	})
	if err != nil {
		a.logger.Warn("flashcard explanation failed", zap.Error(err))
		return FallbackExplanation(answer, title)
	}
	return strings.TrimSpace(out)
}

// FallbackExplanation is returned when an explanation cannot be generated.
func FallbackExplanation(answer, title string) string {
	return fmt.Sprintf("The answer is: %s\n\nThis concept is discussed in the video '%s'. For more details, please review the video transcript and summary.", answer, title)
}

// RelatedVideos suggests follow-up searches. Any failure is a GenerationError.
func (a *StudyAI) RelatedVideos(ctx context.Context, short, detailed, title string, count int) ([]models.RelatedVideo, error) {
	out, err := a.complete(ctx, "related_videos", ai.ChatRequest{
		Messages: []ai.Message{
			ai.System(fmt.Sprintf(`Suggest %d YouTube videos a student should watch next to deepen the topics of the summary.
Each suggestion has a title, a one sentence description, a YouTube search query and the reason it helps.
Return only a JSON object: {"related_videos":[{"title":"...","description":"...","search_query":"...","reason":"..."}]}`, count)),
			ai.User(fmt.Sprintf("Video Title: %s\n\nSummary:\n%s\n\n%s", title, short, detailed)),
		},
		Temperature: 0.5,
		MaxTokens:   2000,
		JSONMode:    true,
	})
	if err != nil {
		return nil, &ai.GenerationError{Operation: "related_videos", Reason: "model unavailable", Err: err}
	}
	raw, err := ai.DecodeList[models.RelatedVideo](out, "related_videos")
	if err != nil {
		genErr := &ai.GenerationError{Operation: "related_videos", Reason: "response did not match the related video schema", Err: err}
		a.record("related_videos", genErr)
		return nil, genErr
	}
	videos := make([]models.RelatedVideo, 0, len(raw))
	for _, v := range raw {
		v.Title = strings.TrimSpace(v.Title)
		if v.Title == "" {
			continue
		}
		if strings.TrimSpace(v.SearchQuery) == "" {
			v.SearchQuery = v.Title
		}
		videos = append(videos, v)
		if len(videos) == count {
			break
		}
	}
	if len(videos) == 0 {
		return nil, &ai.GenerationError{Operation: "related_videos", Reason: "no usable suggestions"}
	}
	return videos, nil
}

// Quiz builds multiple choice questions with four options each. Any failure is a GenerationError.
func (a *StudyAI) Quiz(ctx context.Context, source, title string, count int) ([]models.QuizQuestion, error) {
	source = truncateRunes(source, flashcardSourceMax)
	out, err := a.complete(ctx, "quiz", ai.ChatRequest{
		Messages: []ai.Message{
			ai.System(fmt.Sprintf(`Write %d multiple choice questions that test understanding of the document.
Every question has exactly 4 options, correct_answer is the 0-based index of the right option and explanation says why.
Return only a JSON object: {"questions":[{"question":"...","options":["a","b","c","d"],"correct_answer":0,"explanation":"..."}]}`, count)),
			ai.User(fmt.Sprintf("Title: %s\n\nContent:\n%s", title, source)),
		},
		Temperature: 0.4,
		MaxTokens:   3000,
		JSONMode:    true,
	})
	if err != nil {
		return nil, &ai.GenerationError{Operation: "quiz", Reason: "model unavailable", Err: err}
	}
	raw, err := ai.DecodeList[models.QuizQuestion](out, "questions")
	if err != nil {
		genErr := &ai.GenerationError{Operation: "quiz", Reason: "response did not match the quiz schema", Err: err}
		a.record("quiz", genErr)
		return nil, genErr
	}
	questions := make([]models.QuizQuestion, 0, len(raw))
	for _, q := range raw {
		if strings.TrimSpace(q.Question) == "" || len(q.Options) != 4 || q.CorrectAnswer < 0 || q.CorrectAnswer > 3 {
			continue
		}
		questions = append(questions, q)
		if len(questions) == count {
			break
		}
	}
	if len(questions) == 0 {
		return nil, &ai.GenerationError{Operation: "quiz", Reason: "no valid questions"}
	}
	return questions, nil
}

// SlideOutline asks for a 3 to 8 slide deck outline.
func (a *StudyAI) SlideOutline(ctx context.Context, title, summary string) ([]slides.Slide, error) {
	out, err := a.complete(ctx, "slide_outline", ai.ChatRequest{
		Messages: []ai.Message{
			ai.System(fmt.Sprintf(`Design a presentation of %d to %d slides that teaches the material.
Each slide has a short title, up to 5 concise bullets and an image_prompt describing an illustration.
Return only a JSON object: {"slides":[{"title":"...","bullets":["..."],"image_prompt":"..."}]}`, slides.MinSlides, slides.MaxSlides)),
			ai.User(fmt.Sprintf("Title: %s\n\nMaterial:\n%s", title, summary)),
		},
		Temperature: 0.4,
		MaxTokens:   2500,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}
	raw, err := ai.DecodeList[slides.Slide](out, "slides")
	if err != nil {
		genErr := &ai.GenerationError{Operation: "slide_outline", Reason: "response did not match the slide schema", Err: err}
		a.record("slide_outline", genErr)
		return nil, genErr
	}
	deck, err := slides.NormalizeOutline(raw)
	if err != nil {
		return nil, &ai.GenerationError{Operation: "slide_outline", Reason: "outline too short", Err: err}
	}
	return deck, nil
}

// DocumentChat answers a message about a document with the recent exchanges as context.
func (a *StudyAI) DocumentChat(ctx context.Context, title, content, message string, history []models.DocumentChatMessage) (string, error) {
	content = truncateRunes(content, flashcardSourceMax)
	messages := []ai.Message{
		ai.System(fmt.Sprintf("You help a student study the document %q. Answer from the document when possible.\n\nDocument:\n%s", title, content)),
	}
	for _, turn := range history {
		messages = append(messages, ai.User(turn.Message), ai.Message{Role: "assistant", Content: turn.Response})
	}
	messages = append(messages, ai.User(message))
	out, err := a.complete(ctx, "document_chat", ai.ChatRequest{Messages: messages, Temperature: 0.5, MaxTokens: 1000})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// GenerateNotes writes structured notes for a document following the user's prompt.
func (a *StudyAI) GenerateNotes(ctx context.Context, title, content, prompt string) (string, error) {
	content = truncateRunes(content, flashcardSourceMax)
	out, err := a.complete(ctx, "generate_notes", ai.ChatRequest{
		Messages: []ai.Message{
			ai.System("You write well structured markdown study notes with headings, bullet points and key terms in bold."),
			ai.User(fmt.Sprintf("Document: %s\n\n%s\n\nInstructions: %s", title, content, prompt)),
		},
		Temperature: 0.5,
		MaxTokens:   2000,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// DirectReply answers an @AI mention. conversation holds "name: content" lines.
func (a *StudyAI) DirectReply(ctx context.Context, conversation []string, prompt string) (string, error) {
	out, err := a.complete(ctx, "direct_reply", ai.ChatRequest{
		Messages: []ai.Message{
			ai.System("You are the PeerLearn study assistant taking part in a conversation between two students. Reply helpfully and briefly."),
			ai.User(fmt.Sprintf("Recent conversation:\n%s\n\nRequest: %s", strings.Join(conversation, "\n"), prompt)),
		},
		Temperature: 0.6,
		MaxTokens:   800,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
