package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/pkg/ai"
	"github.com/peerlearn/peerlearn-api/pkg/media"
)

type scriptedReply struct {
	out string
	err error
}

// scriptedCompleter replays replies in order and repeats the last one.
type scriptedCompleter struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []ai.ChatRequest
}

func (s *scriptedCompleter) Complete(ctx context.Context, req ai.ChatRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return r.out, r.err
}

type recordingGenerations struct {
	mu       sync.Mutex
	outcomes map[string][]string
}

func (r *recordingGenerations) RecordGeneration(operation, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string][]string{}
	}
	r.outcomes[operation] = append(r.outcomes[operation], outcome)
}

func newTestStudyAI(replies ...scriptedReply) (*StudyAI, *scriptedCompleter, *recordingGenerations) {
	llm := &scriptedCompleter{replies: replies}
	metrics := &recordingGenerations{}
	return NewStudyAI(llm, metrics, zap.NewNop(), StudyAIConfig{ChatModel: "gpt-test"}), llm, metrics
}

func TestStudyAISummariesRetriesThenSucceeds(t *testing.T) {
	assistant, llm, metrics := newTestStudyAI(
		scriptedReply{err: errors.New("503")},
		scriptedReply{out: " - point one "},
		scriptedReply{out: "# Detailed"},
	)
	short, detailed, fellBack := assistant.Summaries(context.Background(), "real transcript", "Go")
	assert.False(t, fellBack)
	assert.Equal(t, "- point one", short)
	assert.Equal(t, "# Detailed", detailed)
	require.Len(t, llm.requests, 3)
	assert.Equal(t, "gpt-test", llm.requests[0].Model)
	assert.Equal(t, []string{"error", "success"}, metrics.outcomes["summary_short"])
}

func TestStudyAISummariesFallBack(t *testing.T) {
	assistant, llm, _ := newTestStudyAI(scriptedReply{err: errors.New("down")})

	short, detailed, fellBack := assistant.Summaries(context.Background(), "transcript", "Go")
	assert.True(t, fellBack)
	wantShort, wantDetailed := FallbackSummaries("Go")
	assert.Equal(t, wantShort, short)
	assert.Equal(t, wantDetailed, detailed)
	assert.Len(t, llm.requests, summaryAttempts)

	llm.requests = nil
	_, _, fellBack = assistant.Summaries(context.Background(), media.FallbackTranscript(1024), "Go")
	assert.True(t, fellBack)
	assert.Empty(t, llm.requests)
}

func TestStudyAIFlashcards(t *testing.T) {
	assistant, llm, _ := newTestStudyAI(scriptedReply{out: "```json\n" + `{"flashcards":[
		{"question":"What is a goroutine?","answer":"A lightweight thread","explanation":""},
		{"question":"","answer":"dropped"},
		{"question":"What is a channel?","answer":"A typed conduit","explanation":"Used to communicate"}
	]}` + "\n```"})

	cards, err := assistant.Flashcards(context.Background(), "short", "detailed", "Go", 10)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, missingExplanation, cards[0].Explanation)
	assert.True(t, llm.requests[0].JSONMode)

	assistant, _, _ = newTestStudyAI(scriptedReply{err: errors.New("timeout")})
	cards, err = assistant.Flashcards(context.Background(), "short", "detailed", "Go", 10)
	require.NoError(t, err)
	assert.Equal(t, FallbackFlashcards("Go"), cards)

	assistant, _, metrics := newTestStudyAI(scriptedReply{out: "sorry, I cannot do that"})
	_, err = assistant.Flashcards(context.Background(), "short", "detailed", "Go", 10)
	require.Error(t, err)
	assert.True(t, ai.IsGenerationError(err))
	assert.Contains(t, metrics.outcomes["flashcards"], "invalid")
}

func TestStudyAIQuizKeepsValidQuestions(t *testing.T) {
	assistant, _, _ := newTestStudyAI(scriptedReply{out: `{"questions":[
		{"question":"2+2?","options":["1","2","3","4"],"correct_answer":3,"explanation":"math"},
		{"question":"three options","options":["a","b","c"],"correct_answer":0},
		{"question":"bad index","options":["a","b","c","d"],"correct_answer":7}
	]}`})
	questions, err := assistant.Quiz(context.Background(), "content", "Math", 5)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, 3, questions[0].CorrectAnswer)

	assistant, _, _ = newTestStudyAI(scriptedReply{out: `{"questions":[]}`})
	_, err = assistant.Quiz(context.Background(), "content", "Math", 5)
	assert.True(t, ai.IsGenerationError(err))
}

func TestStudyAIRelatedVideosDefaultsSearchQuery(t *testing.T) {
	assistant, _, _ := newTestStudyAI(scriptedReply{out: `{"related_videos":[{"title":"Channels in depth","description":"d","reason":"r"}]}`})
	videos, err := assistant.RelatedVideos(context.Background(), "s", "d", "Go", 3)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "Channels in depth", videos[0].SearchQuery)

	assistant, _, _ = newTestStudyAI(scriptedReply{err: errors.New("down")})
	_, err = assistant.RelatedVideos(context.Background(), "s", "d", "Go", 3)
	assert.True(t, ai.IsGenerationError(err))
}

func TestStudyAISlideOutline(t *testing.T) {
	assistant, _, _ := newTestStudyAI(scriptedReply{out: `{"slides":[
		{"title":"Intro","bullets":["why"]},
		{"title":"Body","bullets":["how"]},
		{"title":"Wrap up","bullets":["recap"]}
	]}`})
	deck, err := assistant.SlideOutline(context.Background(), "Go", "summary")
	require.NoError(t, err)
	assert.Len(t, deck, 3)

	assistant, _, _ = newTestStudyAI(scriptedReply{out: `{"slides":[{"title":"Only one"}]}`})
	_, err = assistant.SlideOutline(context.Background(), "Go", "summary")
	assert.True(t, ai.IsGenerationError(err))
}

func TestStudyAISuggestionsAndRoomSummary(t *testing.T) {
	assistant, _, _ := newTestStudyAI(scriptedReply{out: "1. Calculus Crew\n- \"Derivative Den\"\n\n3) Limit Lab"})
	assert.Equal(t, []string{"Calculus Crew", "Derivative Den", "Limit Lab"}, assistant.SuggestClassroomNames(context.Background(), "calculus"))

	assistant, llm, _ := newTestStudyAI(scriptedReply{err: errors.New("down")})
	assert.Equal(t, roomNameFallback, assistant.SuggestRoomNames(context.Background(), "Calc", "math"))
	assert.Equal(t, RoomSummaryFallback, assistant.SummarizeRoom(context.Background(), "general", []string{"a: hi"}))

	lines := make([]string, roomSummaryWindow+10)
	for i := range lines {
		lines[i] = "user: line"
	}
	lines[0] = "user: oldest"
	assistant.SummarizeRoom(context.Background(), "general", lines)
	last := llm.requests[len(llm.requests)-1]
	assert.False(t, strings.Contains(last.Messages[1].Content, "oldest"))
}

func TestModerationFailsOpen(t *testing.T) {
	metrics := &recordingGenerations{}
	llm := &scriptedCompleter{replies: []scriptedReply{{err: errors.New("down")}}}
	mod := NewModerationService(llm, "mod-model", metrics, zap.NewNop())

	verdict := mod.Moderate(context.Background(), "hello")
	assert.True(t, verdict.IsAppropriate)
	assert.Equal(t, "Moderation service unavailable", verdict.Reason)

	llm.replies = []scriptedReply{{out: "I think it is fine"}}
	verdict = mod.Moderate(context.Background(), "hello")
	assert.True(t, verdict.IsAppropriate)
	assert.Equal(t, 0.5, verdict.Confidence)
	assert.Equal(t, []string{"error", "invalid"}, metrics.outcomes["moderation"])
	assert.Equal(t, "mod-model", llm.requests[0].Model)
}

func TestModerationCheckRejects(t *testing.T) {
	llm := &scriptedCompleter{replies: []scriptedReply{{out: `{"is_appropriate": false, "reason": "personal attack", "confidence": 0.9}`}}}
	mod := NewModerationService(llm, "", nil, nil)

	err := mod.Check(context.Background(), "you are stupid")
	assertAppError(t, err, http.StatusBadRequest, "Message content inappropriate: personal attack")

	llm.replies = []scriptedReply{{out: `{"is_appropriate": true, "reason": "", "confidence": 0.95}`}}
	assert.NoError(t, mod.Check(context.Background(), "what is a derivative?"))
}

func TestStudyAITruncatesOnRuneBoundaries(t *testing.T) {
	// The leading byte pushes every two-byte rune off an even offset.
	long := "x" + strings.Repeat("é", flashcardSourceMax+50)
	assistant, llm, _ := newTestStudyAI(scriptedReply{err: errors.New("offline")})
	ctx := context.Background()

	_, _ = assistant.Flashcards(ctx, "short", long, "Go", 5)
	_, _ = assistant.Quiz(ctx, long, "Go", 5)
	_, _ = assistant.DocumentChat(ctx, "Go", long, "what?", nil)
	_, _ = assistant.GenerateNotes(ctx, "Go", long, "outline")
	_ = assistant.ExplainFlashcard(ctx, "q", "a", long, "Go")

	require.Len(t, llm.requests, 5)
	for _, req := range llm.requests {
		for _, msg := range req.Messages {
			assert.True(t, utf8.ValidString(msg.Content))
			assert.LessOrEqual(t, strings.Count(msg.Content, "é"), flashcardSourceMax)
		}
	}
	explain := llm.requests[4]
	var explainRunes int
	for _, msg := range explain.Messages {
		explainRunes += strings.Count(msg.Content, "é")
	}
	assert.LessOrEqual(t, explainRunes, explainContextMax)
}
