package grading

import "exam-service/internal/domain"

// GroupAnswerRecords turns a flat stream of (student, question, letter)
// records into one graded result per student, in order of first appearance.
// Records for unknown questions are ignored and a later record for the same
// (student, question) replaces an earlier one. Every score is computed against
// all questions of the exam, so unanswered questions count as incorrect.
func GroupAnswerRecords(exam domain.Exam, records []domain.AnswerRecord) []domain.Result {
	order := make([]string, 0)
	answers := make(map[string]map[string]int)

	for _, rec := range records {
		if exam.QuestionIndex(rec.QuestionID) < 0 {
			continue
		}
		byQuestion, ok := answers[rec.StudentID]
		if !ok {
			byQuestion = make(map[string]int)
			answers[rec.StudentID] = byQuestion
			order = append(order, rec.StudentID)
		}
		byQuestion[rec.QuestionID] = domain.LetterIndex(rec.Answer)
	}

	results := make([]domain.Result, 0, len(order))
	for _, studentID := range order {
		results = append(results, domain.Result{
			ExamID:  exam.ID,
			Student: domain.Student{ID: studentID},
			Answers: answers[studentID],
			Score:   Grade(exam, answers[studentID]),
		})
	}
	return results
}
