// Package tutor produces grounded tutoring responses, quizzes, and grading
// using retrieved context and the provider chain.
package tutor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutord/internal/providers"
	"github.com/fyrsmithlabs/tutord/internal/search"
	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

// historyLimit caps how many prior conversation turns reach the prompt.
const historyLimit = 10

// apologyMessage is what students see when every provider fails. The raw
// error stays internal.
const apologyMessage = "I'm having trouble processing your question right now. Please try again in a moment."

// manualReviewMessage is the grading fallback when every provider fails.
const manualReviewMessage = "Unable to grade this answer automatically. Please review manually."

// Searcher retrieves context fragments for prompting.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) []vectorstore.SearchResult
	SearchByTopic(ctx context.Context, topic string, opts search.Options) []vectorstore.SearchResult
}

// Chatter produces completions through the provider chain.
type Chatter interface {
	Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResult, error)
}

// StudentProfile personalizes tutoring responses.
type StudentProfile struct {
	GradeLevel        string   `json:"grade_level"`
	PreferredSubjects []string `json:"preferred_subjects"`
	LearningStyle     string   `json:"learning_style"`
}

// TutorRequest is one student message with its retrieval scope.
type TutorRequest struct {
	Message    string              `json:"message"`
	Subject    string              `json:"subject"`
	GradeLevel string              `json:"grade_level"`
	History    []providers.Message `json:"history"`
	Profile    *StudentProfile     `json:"profile"`
}

// TutorResponse is the tutoring answer. When every provider fails, Response
// holds a generic apology and ErrorCode identifies the failure internally.
type TutorResponse struct {
	Response    string `json:"response"`
	ContextUsed int    `json:"context_used"`
	TokensUsed  int    `json:"tokens_used,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Model       string `json:"model,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
}

// QuizRequest describes the quiz to generate.
type QuizRequest struct {
	Topic        string `json:"topic"`
	Subject      string `json:"subject"`
	GradeLevel   string `json:"grade_level"`
	Difficulty   string `json:"difficulty"`
	NumQuestions int    `json:"num_questions"`
}

// QuestionMetadata classifies a quiz question.
type QuestionMetadata struct {
	Difficulty     string `json:"difficulty"`
	CognitiveLevel string `json:"cognitive_level"`
	TopicArea      string `json:"topic_area"`
}

// Question is one quiz question.
type Question struct {
	Question      string           `json:"question"`
	Type          string           `json:"type"`
	Options       []string         `json:"options,omitempty"`
	CorrectAnswer string           `json:"correct_answer"`
	Explanation   string           `json:"explanation"`
	Points        float64          `json:"points"`
	Metadata      QuestionMetadata `json:"metadata"`
}

// Quiz is the structured quiz payload the model produces.
type Quiz struct {
	Title           string     `json:"title"`
	Instructions    string     `json:"instructions"`
	DurationMinutes int        `json:"duration_minutes"`
	Questions       []Question `json:"questions"`
}

// QuizResult wraps a generated quiz with usage metadata.
type QuizResult struct {
	Quiz       Quiz   `json:"quiz"`
	TokensUsed int    `json:"tokens_used"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
}

// GradeRequest describes one answer to grade.
type GradeRequest struct {
	Question      string `json:"question"`
	StudentAnswer string `json:"student_answer"`
	CorrectAnswer string `json:"correct_answer"`
	QuestionType  string `json:"question_type"`
	Context       string `json:"context,omitempty"`
}

// GradeResult is the structured grading payload plus usage metadata. When
// every provider fails, Feedback holds a manual-review notice and ErrorCode
// identifies the failure internally.
type GradeResult struct {
	Score            float64  `json:"score"`
	IsCorrect        bool     `json:"is_correct"`
	Feedback         string   `json:"feedback"`
	Explanation      string   `json:"explanation"`
	KeyPointsCovered []string `json:"key_points_covered,omitempty"`
	Suggestions      string   `json:"suggestions,omitempty"`
	TokensUsed       int      `json:"tokens_used"`
	Provider         string   `json:"provider"`
	Model            string   `json:"model"`
	ErrorCode        string   `json:"error_code,omitempty"`
}

// Service orchestrates retrieval and generation for tutoring flows.
type Service struct {
	searcher Searcher
	chatter  Chatter
	logger   *zap.Logger
}

// NewService creates a tutor service.
func NewService(searcher Searcher, chatter Chatter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{searcher: searcher, chatter: chatter, logger: logger}
}

// Respond answers a student message grounded in retrieved context. Provider
// failures degrade to a polite apology with an internal error code; they
// never surface raw errors to students.
func (s *Service) Respond(ctx context.Context, req TutorRequest) (*TutorResponse, error) {
	fragments := s.searcher.Search(ctx, req.Message, search.Options{
		Subject:    req.Subject,
		GradeLevel: req.GradeLevel,
	})

	messages := []providers.Message{
		{Role: "system", Content: tutorSystemPrompt(buildContext(fragments), req.Profile)},
	}
	history := req.History
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	messages = append(messages, history...)
	messages = append(messages, providers.Message{Role: "user", Content: req.Message})

	result, err := s.chatter.Chat(ctx, providers.ChatRequest{Messages: messages})
	if err != nil {
		s.logger.Error("tutor chat failed", zap.Error(err))
		return &TutorResponse{
			Response:    apologyMessage,
			ContextUsed: len(fragments),
			ErrorCode:   errorCode(err),
		}, nil
	}

	return &TutorResponse{
		Response:    result.Text,
		ContextUsed: len(fragments),
		TokensUsed:  result.TokensUsed,
		Provider:    result.Provider,
		Model:       result.Model,
	}, nil
}

// GenerateQuiz builds a quiz from retrieved context. Unlike tutoring, a
// malformed structured response is a hard failure, never a silent default.
func (s *Service) GenerateQuiz(ctx context.Context, req QuizRequest) (*QuizResult, error) {
	fragments := s.searcher.SearchByTopic(ctx, req.Topic, search.Options{
		Subject:    req.Subject,
		GradeLevel: req.GradeLevel,
	})

	result, err := s.chatter.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "user", Content: quizPrompt(req, buildContext(fragments))},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generating quiz: %w", err)
	}

	var quiz Quiz
	if err := providers.DecodeStructured(result.Text, &quiz); err != nil {
		s.logger.Error("quiz output unparsable",
			zap.String("provider", result.Provider),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("generated quiz",
		zap.String("topic", req.Topic),
		zap.Int("questions", len(quiz.Questions)),
		zap.String("provider", result.Provider),
	)
	return &QuizResult{
		Quiz:       quiz,
		TokensUsed: result.TokensUsed,
		Provider:   result.Provider,
		Model:      result.Model,
	}, nil
}

// Grade evaluates one student answer. Provider failures degrade to a
// zero-score manual-review result; a malformed structured response is a hard
// failure.
func (s *Service) Grade(ctx context.Context, req GradeRequest) (*GradeResult, error) {
	result, err := s.chatter.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "user", Content: gradingPrompt(req)},
		},
	})
	if err != nil {
		s.logger.Error("grading chat failed", zap.Error(err))
		return &GradeResult{
			Feedback:  manualReviewMessage,
			ErrorCode: errorCode(err),
		}, nil
	}

	var grade GradeResult
	if err := providers.DecodeStructured(result.Text, &grade); err != nil {
		s.logger.Error("grading output unparsable",
			zap.String("provider", result.Provider),
			zap.Error(err),
		)
		return nil, err
	}

	grade.TokensUsed = result.TokensUsed
	grade.Provider = result.Provider
	grade.Model = result.Model
	return &grade, nil
}

// errorCode maps internal failures to stable, student-safe codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, providers.ErrAllProvidersExhausted):
		return "providers_exhausted"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "request_canceled"
	default:
		return "provider_error"
	}
}
