// Package grading scores submissions against an exam's answer key and
// aggregates class statistics. Every function is pure: callers pass the full
// input and receive a fresh value back.
package grading

import (
	"github.com/shopspring/decimal"

	"exam-service/internal/domain"
)

const (
	// MaxScore is the top of the grading scale.
	MaxScore = 10
	// PassThreshold is inclusive: a 7.0 passes.
	PassThreshold = 7.0
	// RemedialThreshold is the lower bound of the remedial tier.
	RemedialThreshold = 5.0
)

// Grade counts the answers matching the key and scales the count to 0-10 with
// one decimal. Questions missing from answers count as incorrect. An exam
// without questions scores 0.
func Grade(exam domain.Exam, answers map[string]int) domain.Score {
	correct := 0
	for _, q := range exam.Questions {
		if chosen, ok := answers[q.ID]; ok && chosen == q.Correct {
			correct++
		}
	}
	total := len(exam.Questions)
	return domain.Score{Correct: correct, Total: total, Value: scale(correct, total)}
}

// scale rounds half-up on the exact rational value, so 1/8 gives 1.3.
func scale(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	v := decimal.NewFromInt(int64(correct) * MaxScore).
		Div(decimal.NewFromInt(int64(total))).
		Round(1)
	f, _ := v.Float64()
	return f
}

// Classify maps a score to its status tier.
func Classify(score float64) domain.Status {
	switch {
	case score >= PassThreshold:
		return domain.StatusApproved
	case score >= RemedialThreshold:
		return domain.StatusRemedial
	default:
		return domain.StatusFailed
	}
}

// Feedback is the message shown to a student next to their score.
func Feedback(status domain.Status) string {
	switch status {
	case domain.StatusApproved:
		return "Excellent result!"
	case domain.StatusRemedial:
		return "Good job!"
	default:
		return "Keep studying!"
	}
}

// Format renders a score or statistic with exactly one decimal.
func Format(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1)
}
