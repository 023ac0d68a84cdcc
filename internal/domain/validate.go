package domain

import (
	"strconv"
	"strings"
)

// NormalizeExam trims authored text and checks that the exam can be taken:
// a title, a description, at least one question, and for every question a
// prompt, two or more non-empty options and a correct option in range.
func NormalizeExam(e *Exam) error {
	e.Title = strings.TrimSpace(e.Title)
	e.Description = strings.TrimSpace(e.Description)
	if e.Title == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if e.Description == "" {
		return &ValidationError{Field: "description", Reason: "required"}
	}
	if len(e.Questions) == 0 {
		return &ValidationError{Field: "questions", Reason: "at least one question is required"}
	}

	seen := make(map[string]struct{}, len(e.Questions))
	for i := range e.Questions {
		q := &e.Questions[i]
		field := "questions[" + strconv.Itoa(i) + "]"

		q.ID = strings.TrimSpace(q.ID)
		if q.ID == "" {
			q.ID = "q" + strconv.Itoa(i+1)
		}
		if _, dup := seen[q.ID]; dup {
			return &ValidationError{Field: field + ".id", Reason: "duplicate question id " + q.ID}
		}
		seen[q.ID] = struct{}{}

		q.Prompt = strings.TrimSpace(q.Prompt)
		if q.Prompt == "" {
			return &ValidationError{Field: field + ".prompt", Reason: "required"}
		}
		if len(q.Options) < 2 || len(q.Options) > MaxOptions {
			return &ValidationError{Field: field + ".options", Reason: "between 2 and 26 options are required"}
		}
		for j := range q.Options {
			q.Options[j] = strings.TrimSpace(q.Options[j])
			if q.Options[j] == "" {
				return &ValidationError{Field: field + ".options[" + strconv.Itoa(j) + "]", Reason: "required"}
			}
		}
		if q.Correct < 0 || q.Correct >= len(q.Options) {
			return &ValidationError{Field: field + ".correct", Reason: "must point at one of the options"}
		}
	}
	return nil
}

// MissingAnswers returns the ids of questions without an entry in answers,
// in exam order.
func MissingAnswers(e Exam, answers map[string]int) []string {
	var missing []string
	for _, q := range e.Questions {
		if _, ok := answers[q.ID]; !ok {
			missing = append(missing, q.ID)
		}
	}
	return missing
}
