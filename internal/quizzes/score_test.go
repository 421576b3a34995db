package quizzes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/learnhub/backend/internal/models"
)

func quizWith(answers ...int) *models.Quiz {
	q := &models.Quiz{}
	for _, a := range answers {
		q.Questions = append(q.Questions, models.QuizQuestion{Options: []string{"a", "b", "c"}, CorrectAnswer: a})
	}
	return q
}

func TestScore(t *testing.T) {
	cases := []struct {
		name        string
		quiz        *models.Quiz
		answers     []int
		wantScore   float64
		wantCorrect int
	}{
		{"all correct", quizWith(0, 1, 2), []int{0, 1, 2}, 100, 3},
		{"two of three", quizWith(0, 1, 2), []int{0, 1, 0}, 66.67, 2},
		{"missing answers count wrong", quizWith(0, 1, 2, 0), []int{0}, 25, 1},
		{"extra answers ignored", quizWith(1), []int{1, 1, 1}, 100, 1},
		{"empty quiz", quizWith(), []int{0}, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score, correct := Score(tc.quiz, tc.answers)
			assert.InDelta(t, tc.wantScore, score, 0.001)
			assert.Equal(t, tc.wantCorrect, correct)
		})
	}
}
