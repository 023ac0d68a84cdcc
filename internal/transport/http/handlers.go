package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"exam-service/internal/app"
	"exam-service/internal/domain"
	"exam-service/internal/grading"
	"exam-service/internal/logger"
)

type handlers struct {
	service  *app.ExamService
	identity IdentityProvider
	log      *logger.Logger
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// examView is what students see: the answer key is never included.
type examView struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Subject     string         `json:"subject,omitempty"`
	Date        *time.Time     `json:"date,omitempty"`
	Active      bool           `json:"active"`
	Questions   []questionView `json:"questions"`
	Submitted   *bool          `json:"submitted,omitempty"`
}

type questionView struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

type createExamRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Subject     string          `json:"subject"`
	Date        string          `json:"date"`
	Questions   []questionInput `json:"questions"`
}

type questionInput struct {
	ID      string      `json:"id"`
	Prompt  string      `json:"prompt"`
	Options []string    `json:"options"`
	Correct answerValue `json:"correct"`
}

type activeRequest struct {
	Active *bool `json:"active"`
}

type submitRequest struct {
	Answers map[string]answerValue `json:"answers"`
}

type submissionResponse struct {
	Result   domain.Result `json:"result"`
	Status   domain.Status `json:"status"`
	Feedback string        `json:"feedback"`
}

// answerValue is an option given either as a zero-based index or as a
// letter. Letters follow LetterIndex, so an unknown letter grades as wrong.
type answerValue int

func (a *answerValue) UnmarshalJSON(data []byte) error {
	var idx int
	if err := json.Unmarshal(data, &idx); err == nil {
		*a = answerValue(idx)
		return nil
	}
	var letter string
	if err := json.Unmarshal(data, &letter); err != nil {
		return fmt.Errorf("answer must be an option index or letter")
	}
	*a = answerValue(domain.LetterIndex(strings.TrimSpace(letter)))
	return nil
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if strings.TrimSpace(req.Login) == "" || req.Password == "" {
		writeError(w, h.log, &domain.ValidationError{Field: "login", Reason: "login and password are required"})
		return
	}
	session, err := h.identity.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// listExams shows instructors their own exams and students the active ones,
// each flagged with whether the student already submitted.
func (h *handlers) listExams(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims.Role == domain.RoleInstructor {
		exams, err := h.service.ListExams(r.Context(), domain.ExamFilter{OwnerID: claims.Student().ID})
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		writeJSON(w, http.StatusOK, exams)
		return
	}

	exams, err := h.service.ListExams(r.Context(), domain.ExamFilter{ActiveOnly: true})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	studentID := claims.Student().ID
	views := make([]examView, 0, len(exams))
	for _, e := range exams {
		done, err := h.service.HasSubmitted(r.Context(), e.ID, studentID)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		v := studentView(e)
		v.Submitted = &done
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handlers) getExam(w http.ResponseWriter, r *http.Request) {
	exam, err := h.service.GetExam(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	claims := claimsFrom(r.Context())
	if claims.Role == domain.RoleInstructor {
		writeJSON(w, http.StatusOK, exam)
		return
	}
	if !exam.Active {
		// inactive exams are invisible to students
		writeError(w, h.log, domain.ErrExamNotFound)
		return
	}
	writeJSON(w, http.StatusOK, studentView(exam))
}

func (h *handlers) createExam(w http.ResponseWriter, r *http.Request) {
	var req createExamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	draft := domain.Exam{
		Title:       req.Title,
		Description: req.Description,
		Subject:     strings.TrimSpace(req.Subject),
		Questions:   make([]domain.Question, 0, len(req.Questions)),
	}
	if req.Date != "" {
		d, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, h.log, &domain.ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"})
			return
		}
		draft.Date = &d
	}
	for _, q := range req.Questions {
		draft.Questions = append(draft.Questions, domain.Question{
			ID:      q.ID,
			Prompt:  q.Prompt,
			Options: q.Options,
			Correct: int(q.Correct),
		})
	}

	exam, err := h.service.CreateExam(r.Context(), claimsFrom(r.Context()).Student().ID, draft)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, exam)
}

func (h *handlers) deleteExam(w http.ResponseWriter, r *http.Request) {
	owner := claimsFrom(r.Context()).Student().ID
	if err := h.service.DeleteExam(r.Context(), owner, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setActive(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if req.Active == nil {
		writeError(w, h.log, &domain.ValidationError{Field: "active", Reason: "required"})
		return
	}
	owner := claimsFrom(r.Context()).Student().ID
	exam, err := h.service.SetActive(r.Context(), owner, chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *handlers) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	answers := make(map[string]int, len(req.Answers))
	for id, a := range req.Answers {
		answers[id] = int(a)
	}
	result, err := h.service.RecordResult(r.Context(), chi.URLParam(r, "id"), claimsFrom(r.Context()).Student(), answers)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSubmissionResponse(result))
}

func (h *handlers) mySubmission(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.StudentResult(r.Context(), chi.URLParam(r, "id"), claimsFrom(r.Context()).Student().ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newSubmissionResponse(result))
}

func (h *handlers) report(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ClassReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// exportReport renders into a buffer first so a failure still yields a
// proper error response.
func (h *handlers) exportReport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	name, err := h.service.ExportReport(r.Context(), chi.URLParam(r, "id"), &buf)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func newSubmissionResponse(r domain.Result) submissionResponse {
	status := grading.Classify(r.Score.Value)
	return submissionResponse{Result: r, Status: status, Feedback: grading.Feedback(status)}
}

func studentView(e domain.Exam) examView {
	v := examView{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Subject:     e.Subject,
		Date:        e.Date,
		Active:      e.Active,
		Questions:   make([]questionView, 0, len(e.Questions)),
	}
	for _, q := range e.Questions {
		v.Questions = append(v.Questions, questionView{ID: q.ID, Prompt: q.Prompt, Options: q.Options})
	}
	return v
}
