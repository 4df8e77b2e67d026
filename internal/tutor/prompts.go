package tutor

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

// buildContext renders retrieved fragments into the prompt's context block.
func buildContext(fragments []vectorstore.SearchResult) string {
	if len(fragments) == 0 {
		return "No reference material available."
	}
	parts := make([]string, len(fragments))
	for i, f := range fragments {
		parts[i] = fmt.Sprintf("Document: %s\n%s", f.Title, f.Content)
	}
	return strings.Join(parts, "\n\n")
}

// tutorSystemPrompt builds the system message for a tutoring exchange.
func tutorSystemPrompt(context string, profile *StudentProfile) string {
	var b strings.Builder
	b.WriteString(`You are a patient, encouraging tutor helping school students understand their course material.

Your teaching style:
- Explain step by step, starting from simple, relatable examples
- Break complex topics into smaller parts
- Encourage questions and curiosity
- Suggest practice problems where appropriate
- End explanations by checking understanding

Ground every factual claim in the reference material below. If the material does not cover the question, say so honestly rather than inventing details.

REFERENCE MATERIAL:
`)
	b.WriteString(context)

	if profile != nil {
		b.WriteString("\n\nSTUDENT PROFILE:\n")
		fmt.Fprintf(&b, "- Grade level: %s\n", orUnspecified(profile.GradeLevel))
		fmt.Fprintf(&b, "- Preferred subjects: %s\n", orUnspecified(strings.Join(profile.PreferredSubjects, ", ")))
		fmt.Fprintf(&b, "- Learning style: %s\n", orUnspecified(profile.LearningStyle))
		b.WriteString("\nAdapt your explanations to this profile.")
	}
	return b.String()
}

func orUnspecified(s string) string {
	if s == "" {
		return "not specified"
	}
	return s
}

// quizPrompt builds the quiz generation prompt. The model must answer with
// the JSON shape that Quiz unmarshals from.
func quizPrompt(req QuizRequest, context string) string {
	return fmt.Sprintf(`Generate a quiz from the following specifications.

QUIZ SPECIFICATIONS:
- Topic: %s
- Subject: %s
- Grade level: %s
- Difficulty: %s
- Number of questions: %d

REFERENCE MATERIAL:
%s

REQUIREMENTS:
1. Base every question on the reference material
2. Mix question types: multiple choice, short answer, and application questions
3. Test different cognitive levels (knowledge, understanding, application, analysis)
4. Provide clear, unambiguous correct answers with detailed explanations
5. Keep language appropriate for the grade level

Respond with JSON only, no surrounding prose, in exactly this shape:
{
  "title": "Quiz title",
  "instructions": "Clear instructions for students",
  "duration_minutes": 30,
  "questions": [
    {
      "question": "Question text",
      "type": "mcq|short_answer|essay",
      "options": ["A", "B", "C", "D"],
      "correct_answer": "Correct answer or option letter",
      "explanation": "Why this answer is correct",
      "points": 1.0,
      "metadata": {
        "difficulty": "easy|medium|hard",
        "cognitive_level": "knowledge|understanding|application|analysis",
        "topic_area": "specific topic within the subject"
      }
    }
  ]
}`,
		req.Topic, req.Subject, req.GradeLevel, req.Difficulty, req.NumQuestions, context)
}

// gradingPrompt builds the answer grading prompt. The model must answer with
// the JSON shape that GradeResult unmarshals from.
func gradingPrompt(req GradeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a teacher grading a student response. Evaluate fairly and give constructive, encouraging feedback.

QUESTION: %s
QUESTION TYPE: %s
CORRECT ANSWER: %s
STUDENT ANSWER: %s
`,
		req.Question, req.QuestionType, req.CorrectAnswer, req.StudentAnswer)

	if req.Context != "" {
		fmt.Fprintf(&b, "\nADDITIONAL CONTEXT: %s\n", req.Context)
	}

	b.WriteString(`
GRADING CRITERIA:
1. Multiple choice: exact match required (score 1.0 or 0.0)
2. Short answer: partial credit for key points covered
3. Essay: evaluate understanding, reasoning, and completeness

Give credit for correct understanding even when the wording is imperfect. Focus on concepts over language.

Respond with JSON only, no surrounding prose, in exactly this shape:
{
  "score": 0.8,
  "is_correct": true,
  "feedback": "What the student did well and what to improve",
  "explanation": "The correct answer and why",
  "key_points_covered": ["point1", "point2"],
  "suggestions": "Specific suggestions for improvement"
}`)
	return b.String()
}
