package domain

import "time"

// Role distinguishes what an authenticated user may do.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleInstructor
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Correct int      `json:"correct"` // zero-based index into Options
}

// Exam is an ordered collection of questions. Content is immutable after
// creation; only Active changes.
type Exam struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	OwnerID     string     `json:"ownerId,omitempty"`
	Subject     string     `json:"subject,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Active      bool       `json:"active"`
	Questions   []Question `json:"questions"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// QuestionIndex returns the position of the question with the given id, or -1.
func (e Exam) QuestionIndex(id string) int {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return i
		}
	}
	return -1
}

// ExamFilter narrows exam listings.
type ExamFilter struct {
	OwnerID    string
	ActiveOnly bool
}

// Student identifies whoever submits a result.
type Student struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Score is the graded outcome of one submission on the 0-10 scale.
type Score struct {
	Correct int     `json:"correct"`
	Total   int     `json:"total"`
	Value   float64 `json:"value"` // already rounded to one decimal
}

// Result is one student's finalized attempt at one exam.
type Result struct {
	ID          string         `json:"id"`
	ExamID      string         `json:"examId"`
	Student     Student        `json:"student"`
	Answers     map[string]int `json:"answers"`
	Score       Score          `json:"score"`
	SubmittedAt time.Time      `json:"submittedAt"`
}

// DisplayName is the label used in listings and exports.
func (r Result) DisplayName() string {
	if r.Student.Name != "" {
		return r.Student.Name
	}
	if r.Student.Email != "" {
		return r.Student.Email
	}
	return r.Student.ID
}

// AnswerRecord is one (student, question) answer as delivered by the
// upstream exam API, before grouping into per-student scores.
type AnswerRecord struct {
	StudentID  string
	QuestionID string
	Answer     string // option letter, A..E
}

// Status is the three-tier classification of a score.
type Status string

const (
	StatusApproved Status = "Approved"
	StatusRemedial Status = "Remedial"
	StatusFailed   Status = "Failed"
)

// ClassStats aggregates the scores of every result of one exam. Values keep
// full precision; rounding happens when rendered.
type ClassStats struct {
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	Max       float64 `json:"max"`
	Min       float64 `json:"min"`
	PassCount int     `json:"passCount"`
	PassRate  float64 `json:"passRate"`
}

// RankedResult is a result together with its status label.
type RankedResult struct {
	Result
	Status Status `json:"status"`
}

// ClassReport is the derived, never persisted view of an exam's results.
type ClassReport struct {
	Exam    Exam           `json:"exam"`
	Stats   *ClassStats    `json:"stats,omitempty"` // nil when nobody has submitted yet
	Results []RankedResult `json:"results"`
}

// DuplicatePolicy decides what happens when a student submits the same exam twice.
type DuplicatePolicy string

const (
	DuplicateReject    DuplicatePolicy = "reject"
	DuplicateOverwrite DuplicatePolicy = "overwrite"
)

// ParseDuplicatePolicy maps a config value to a policy; empty means reject.
func ParseDuplicatePolicy(raw string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(raw) {
	case "", DuplicateReject:
		return DuplicateReject, nil
	case DuplicateOverwrite:
		return DuplicateOverwrite, nil
	default:
		return "", &ValidationError{Field: "results.duplicates", Reason: "must be reject or overwrite"}
	}
}
