package quizzes

import (
	"math"

	"github.com/learnhub/backend/internal/models"
)

// Score grades answers positionally against the quiz. Extra answers are ignored and
// a quiz without questions scores 0.
func Score(q *models.Quiz, answers []int) (score float64, correct int) {
	for i, a := range answers {
		if i < len(q.Questions) && q.Questions[i].CorrectAnswer == a {
			correct++
		}
	}
	if len(q.Questions) == 0 {
		return 0, correct
	}
	score = float64(correct) / float64(len(q.Questions)) * 100
	return math.Round(score*100) / 100, correct
}
