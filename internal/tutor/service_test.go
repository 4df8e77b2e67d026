package tutor

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutord/internal/providers"
	"github.com/fyrsmithlabs/tutord/internal/search"
	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

type fakeSearcher struct {
	fragments []vectorstore.SearchResult
	lastQuery string
	lastTopic string
	lastOpts  search.Options
}

func (f *fakeSearcher) Search(ctx context.Context, query string, opts search.Options) []vectorstore.SearchResult {
	f.lastQuery = query
	f.lastOpts = opts
	return f.fragments
}

func (f *fakeSearcher) SearchByTopic(ctx context.Context, topic string, opts search.Options) []vectorstore.SearchResult {
	f.lastTopic = topic
	f.lastOpts = opts
	return f.fragments
}

type fakeChatter struct {
	text        string
	err         error
	lastRequest providers.ChatRequest
}

func (f *fakeChatter) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResult, error) {
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	return &providers.ChatResult{Text: f.text, TokensUsed: 99, Provider: "openai", Model: "gpt-4o-mini"}, nil
}

func fragments() []vectorstore.SearchResult {
	return []vectorstore.SearchResult{
		{Title: "Photosynthesis Basics", Content: "Plants convert light into chemical energy.", Similarity: 0.92},
		{Title: "Cell Biology", Content: "Chloroplasts host the light reactions.", Similarity: 0.85},
	}
}

func TestRespond_GroundsPromptInContext(t *testing.T) {
	searcher := &fakeSearcher{fragments: fragments()}
	chatter := &fakeChatter{text: "Great question! Plants use sunlight..."}
	svc := NewService(searcher, chatter, zap.NewNop())

	resp, err := svc.Respond(context.Background(), TutorRequest{
		Message:    "How do plants make food?",
		Subject:    "biology",
		GradeLevel: "8",
	})
	require.NoError(t, err)

	assert.Equal(t, "Great question! Plants use sunlight...", resp.Response)
	assert.Equal(t, 2, resp.ContextUsed)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, 99, resp.TokensUsed)

	assert.Equal(t, "How do plants make food?", searcher.lastQuery)
	assert.Equal(t, "biology", searcher.lastOpts.Subject)

	system := chatter.lastRequest.Messages[0]
	assert.Equal(t, "system", system.Role)
	assert.Contains(t, system.Content, "Photosynthesis Basics")
	assert.Contains(t, system.Content, "Chloroplasts host the light reactions.")

	last := chatter.lastRequest.Messages[len(chatter.lastRequest.Messages)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "How do plants make food?", last.Content)
}

func TestRespond_HistoryCappedToLastTen(t *testing.T) {
	chatter := &fakeChatter{text: "ok"}
	svc := NewService(&fakeSearcher{}, chatter, zap.NewNop())

	history := make([]providers.Message, 14)
	for i := range history {
		history[i] = providers.Message{Role: "user", Content: fmt.Sprintf("turn %d", i)}
	}

	_, err := svc.Respond(context.Background(), TutorRequest{Message: "latest", History: history})
	require.NoError(t, err)

	// system + 10 history turns + current message
	require.Len(t, chatter.lastRequest.Messages, 12)
	assert.Equal(t, "turn 4", chatter.lastRequest.Messages[1].Content, "oldest turns dropped first")
	assert.Equal(t, "turn 13", chatter.lastRequest.Messages[10].Content)
}

func TestRespond_ProfileShapesSystemPrompt(t *testing.T) {
	chatter := &fakeChatter{text: "ok"}
	svc := NewService(&fakeSearcher{}, chatter, zap.NewNop())

	_, err := svc.Respond(context.Background(), TutorRequest{
		Message: "help",
		Profile: &StudentProfile{
			GradeLevel:        "8",
			PreferredSubjects: []string{"math", "science"},
			LearningStyle:     "visual",
		},
	})
	require.NoError(t, err)

	system := chatter.lastRequest.Messages[0].Content
	assert.Contains(t, system, "STUDENT PROFILE")
	assert.Contains(t, system, "math, science")
	assert.Contains(t, system, "visual")
}

func TestRespond_DegradesToApologyOnProviderFailure(t *testing.T) {
	chatter := &fakeChatter{err: fmt.Errorf("%w: 2 providers tried", providers.ErrAllProvidersExhausted)}
	svc := NewService(&fakeSearcher{fragments: fragments()}, chatter, zap.NewNop())

	resp, err := svc.Respond(context.Background(), TutorRequest{Message: "help"})
	require.NoError(t, err, "student-facing flow must not surface raw errors")

	assert.Equal(t, apologyMessage, resp.Response)
	assert.Equal(t, "providers_exhausted", resp.ErrorCode)
	assert.Equal(t, 2, resp.ContextUsed)
	assert.Empty(t, resp.Provider)
}

func TestRespond_EmptyContextStillAnswers(t *testing.T) {
	chatter := &fakeChatter{text: "I don't have material on that, but..."}
	svc := NewService(&fakeSearcher{}, chatter, zap.NewNop())

	resp, err := svc.Respond(context.Background(), TutorRequest{Message: "obscure question"})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ContextUsed)
	assert.Contains(t, chatter.lastRequest.Messages[0].Content, "No reference material available.")
}

func TestGenerateQuiz(t *testing.T) {
	quizJSON := `{
		"title": "Algebra Basics",
		"instructions": "Answer all questions.",
		"duration_minutes": 30,
		"questions": [
			{
				"question": "What is 2x when x=3?",
				"type": "mcq",
				"options": ["4", "5", "6", "7"],
				"correct_answer": "6",
				"explanation": "2 times 3 is 6.",
				"points": 1.0,
				"metadata": {"difficulty": "easy", "cognitive_level": "knowledge", "topic_area": "multiplication"}
			}
		]
	}`

	searcher := &fakeSearcher{fragments: fragments()}
	chatter := &fakeChatter{text: quizJSON}
	svc := NewService(searcher, chatter, zap.NewNop())

	result, err := svc.GenerateQuiz(context.Background(), QuizRequest{
		Topic:        "Algebra",
		Subject:      "Mathematics",
		GradeLevel:   "8",
		Difficulty:   "easy",
		NumQuestions: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, "Algebra", searcher.lastTopic)
	assert.Equal(t, "Mathematics", searcher.lastOpts.Subject)
	assert.Equal(t, "Algebra Basics", result.Quiz.Title)
	require.Len(t, result.Quiz.Questions, 1)
	assert.Equal(t, "6", result.Quiz.Questions[0].CorrectAnswer)
	assert.Equal(t, "easy", result.Quiz.Questions[0].Metadata.Difficulty)

	prompt := chatter.lastRequest.Messages[0].Content
	assert.Contains(t, prompt, "Topic: Algebra")
	assert.Contains(t, prompt, "Photosynthesis Basics", "retrieved context reaches the prompt")
}

func TestGenerateQuiz_FencedJSONRecovered(t *testing.T) {
	chatter := &fakeChatter{text: "```json\n{\"title\":\"T\",\"questions\":[]}\n```"}
	svc := NewService(&fakeSearcher{}, chatter, zap.NewNop())

	result, err := svc.GenerateQuiz(context.Background(), QuizRequest{Topic: "x"})
	require.NoError(t, err)
	assert.Equal(t, "T", result.Quiz.Title)
}

func TestGenerateQuiz_MalformedOutputIsHardFailure(t *testing.T) {
	chatter := &fakeChatter{text: "Sure, here is your quiz: 1) What is..."}
	svc := NewService(&fakeSearcher{}, chatter, zap.NewNop())

	_, err := svc.GenerateQuiz(context.Background(), QuizRequest{Topic: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, providers.ErrMalformedOutput)
}

func TestGrade(t *testing.T) {
	gradeJSON := `{
		"score": 0.8,
		"is_correct": true,
		"feedback": "Good grasp of the concept.",
		"explanation": "Photosynthesis produces glucose.",
		"key_points_covered": ["light", "glucose"],
		"suggestions": "Mention chlorophyll next time."
	}`

	chatter := &fakeChatter{text: gradeJSON}
	svc := NewService(&fakeSearcher{}, chatter, zap.NewNop())

	result, err := svc.Grade(context.Background(), GradeRequest{
		Question:      "What does photosynthesis produce?",
		StudentAnswer: "Sugar from light",
		CorrectAnswer: "Glucose",
		QuestionType:  "short_answer",
	})
	require.NoError(t, err)

	assert.Equal(t, 0.8, result.Score)
	assert.True(t, result.IsCorrect)
	assert.Equal(t, []string{"light", "glucose"}, result.KeyPointsCovered)
	assert.Equal(t, "openai", result.Provider)

	prompt := chatter.lastRequest.Messages[0].Content
	assert.Contains(t, prompt, "STUDENT ANSWER: Sugar from light")
	assert.Contains(t, prompt, "QUESTION TYPE: short_answer")
}

func TestGrade_DegradesToManualReviewOnProviderFailure(t *testing.T) {
	chatter := &fakeChatter{err: fmt.Errorf("%w: 2 providers tried", providers.ErrAllProvidersExhausted)}
	svc := NewService(&fakeSearcher{}, chatter, zap.NewNop())

	result, err := svc.Grade(context.Background(), GradeRequest{
		Question:      "q",
		StudentAnswer: "a",
	})
	require.NoError(t, err)
	assert.Zero(t, result.Score)
	assert.Equal(t, manualReviewMessage, result.Feedback)
	assert.Equal(t, "providers_exhausted", result.ErrorCode)
}

func TestGrade_MalformedOutputIsHardFailure(t *testing.T) {
	chatter := &fakeChatter{text: "The student did well, I'd say 8/10."}
	svc := NewService(&fakeSearcher{}, chatter, zap.NewNop())

	_, err := svc.Grade(context.Background(), GradeRequest{Question: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, providers.ErrMalformedOutput)
}

func TestBuildContext(t *testing.T) {
	assert.Equal(t, "No reference material available.", buildContext(nil))

	rendered := buildContext(fragments())
	assert.True(t, strings.HasPrefix(rendered, "Document: Photosynthesis Basics\n"))
	assert.Contains(t, rendered, "\n\nDocument: Cell Biology\n")
}
