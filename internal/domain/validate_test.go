package domain

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalizeExamTrimsAndAssignsIDs(t *testing.T) {
	e := Exam{
		Title:       "  Algebra ",
		Description: " first term ",
		Questions: []Question{
			{Prompt: " 2+2? ", Options: []string{" 3", "4 "}, Correct: 1},
			{ID: "custom", Prompt: "3+3?", Options: []string{"6", "7"}, Correct: 0},
		},
	}
	if err := NormalizeExam(&e); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if e.Title != "Algebra" || e.Description != "first term" {
		t.Fatalf("expected trimmed metadata, got %q / %q", e.Title, e.Description)
	}
	if e.Questions[0].ID != "q1" || e.Questions[1].ID != "custom" {
		t.Fatalf("unexpected ids: %q %q", e.Questions[0].ID, e.Questions[1].ID)
	}
	if !reflect.DeepEqual(e.Questions[0].Options, []string{"3", "4"}) {
		t.Fatalf("expected trimmed options, got %v", e.Questions[0].Options)
	}
}

func TestNormalizeExamRejectsIncompleteInput(t *testing.T) {
	valid := func() Exam {
		return Exam{
			Title:       "T",
			Description: "D",
			Questions:   []Question{{ID: "q1", Prompt: "P", Options: []string{"a", "b"}, Correct: 0}},
		}
	}
	cases := []struct {
		name   string
		mutate func(*Exam)
		field  string
	}{
		{"missing title", func(e *Exam) { e.Title = " " }, "title"},
		{"missing description", func(e *Exam) { e.Description = "" }, "description"},
		{"no questions", func(e *Exam) { e.Questions = nil }, "questions"},
		{"empty prompt", func(e *Exam) { e.Questions[0].Prompt = "" }, "questions[0].prompt"},
		{"one option", func(e *Exam) { e.Questions[0].Options = []string{"a"} }, "questions[0].options"},
		{"blank option", func(e *Exam) { e.Questions[0].Options[1] = "  " }, "questions[0].options[1]"},
		{"correct out of range", func(e *Exam) { e.Questions[0].Correct = 2 }, "questions[0].correct"},
		{"duplicate id", func(e *Exam) { e.Questions = append(e.Questions, e.Questions[0]) }, "questions[1].id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := valid()
			tc.mutate(&e)
			err := NormalizeExam(&e)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, verr.Field)
			}
			if !errors.Is(err, ErrIncomplete) {
				t.Fatalf("expected ErrIncomplete in chain")
			}
		})
	}
}

func TestMissingAnswersKeepsExamOrder(t *testing.T) {
	e := Exam{Questions: []Question{{ID: "q1"}, {ID: "q2"}, {ID: "q3"}}}
	got := MissingAnswers(e, map[string]int{"q2": 0})
	if !reflect.DeepEqual(got, []string{"q1", "q3"}) {
		t.Fatalf("unexpected missing list %v", got)
	}
	if MissingAnswers(e, map[string]int{"q1": 0, "q2": 1, "q3": 2}) != nil {
		t.Fatalf("expected nothing missing")
	}
}

func TestLetterIndexIsCaseSensitive(t *testing.T) {
	if LetterIndex("C") != 2 {
		t.Fatalf("expected C -> 2")
	}
	for _, bad := range []string{"c", "", "AB", "1"} {
		if LetterIndex(bad) != -1 {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	if OptionLabel(4) != "E" || OptionLabel(26) != "?" {
		t.Fatalf("unexpected labels")
	}
}
