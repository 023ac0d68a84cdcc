package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"exam-service/internal/domain"
)

// maxUpstreamOptions is the number of option slots the upstream API has (A..E).
const maxUpstreamOptions = 5

// flexID accepts an id sent as a JSON number or a string.
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = flexID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers, which is what the upstream API issues.
func (id flexID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// flexBool accepts a flag sent as a bool, a number or a string.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := coerceBool(raw)
	if err != nil {
		return err
	}
	*b = flexBool(v)
	return nil
}

func coerceBool(raw interface{}) (bool, error) {
	switch v := raw.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "0", "false", "f", "no", "n", "nao", "não", "inativa":
			return false, nil
		case "1", "true", "t", "yes", "y", "sim", "s", "ativa":
			return true, nil
		}
		return false, &domain.ValidationError{Field: "ativa", Reason: fmt.Sprintf("unrecognized flag %q", v)}
	default:
		return false, &domain.ValidationError{Field: "ativa", Reason: fmt.Sprintf("unexpected type %T", raw)}
	}
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"senha"`
}

type loginResponse struct {
	Token     string `json:"token"`
	CreatedAt string `json:"dataCriacao"`
	ExpiresAt string `json:"dataExpiracao"`
}

type errorBody struct {
	Message string `json:"message"`
}

type professorDTO struct {
	ID    flexID `json:"id"`
	Name  string `json:"nome"`
	Email string `json:"email"`
}

type subjectDTO struct {
	ID        flexID       `json:"id"`
	Name      string       `json:"nome"`
	Professor professorDTO `json:"professor"`
}

type questionDTO struct {
	ID      flexID `json:"id,omitempty"`
	Prompt  string `json:"descricao"`
	Correct string `json:"alternativaCorreta"`
	A       string `json:"alternativaA"`
	B       string `json:"alternativaB"`
	C       string `json:"alternativaC"`
	D       string `json:"alternativaD"`
	E       string `json:"alternativaE"`
}

type answerDTO struct {
	StudentID  flexID `json:"idAluno"`
	QuestionID flexID `json:"idQuestao"`
	Answer     string `json:"resposta"`
	Correct    bool   `json:"acertou,omitempty"`
}

type examDTO struct {
	ID          flexID        `json:"id"`
	Subject     subjectDTO    `json:"disciplina"`
	Title       string        `json:"titulo"`
	Description string        `json:"descricao"`
	Date        string        `json:"data"`
	Total       int           `json:"totalQuestoes"`
	Questions   []questionDTO `json:"questoes"`
	Results     []answerDTO   `json:"resultados"`
	Active      flexBool      `json:"ativa"`
}

type createExamRequest struct {
	SubjectID   int64         `json:"disciplinaId"`
	Title       string        `json:"titulo"`
	Description string        `json:"descricao"`
	Date        string        `json:"data"`
	Questions   []questionDTO `json:"questoes"`
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// toDomain converts the upstream shape into a typed exam. Answer keys must be
// valid letters of a present option.
func (d examDTO) toDomain() (domain.Exam, error) {
	exam := domain.Exam{
		ID:          string(d.ID),
		Title:       strings.TrimSpace(d.Title),
		Description: strings.TrimSpace(d.Description),
		OwnerID:     string(d.Subject.Professor.ID),
		Subject:     strings.TrimSpace(d.Subject.Name),
		Date:        parseDate(d.Date),
		Active:      bool(d.Active),
		Questions:   make([]domain.Question, 0, len(d.Questions)),
	}
	for i, q := range d.Questions {
		id := string(q.ID)
		if id == "" {
			id = "q" + strconv.Itoa(i+1)
		}
		options := trimTrailingEmpty([]string{q.A, q.B, q.C, q.D, q.E})
		correct := domain.LetterIndex(strings.TrimSpace(q.Correct))
		if correct < 0 || correct >= len(options) {
			return domain.Exam{}, &domain.ValidationError{
				Field:  fmt.Sprintf("questoes[%d].alternativaCorreta", i),
				Reason: fmt.Sprintf("%q is not one of the offered options", q.Correct),
			}
		}
		exam.Questions = append(exam.Questions, domain.Question{
			ID:      id,
			Prompt:  strings.TrimSpace(q.Prompt),
			Options: options,
			Correct: correct,
		})
	}
	return exam, nil
}

func (d examDTO) answerRecords() []domain.AnswerRecord {
	records := make([]domain.AnswerRecord, 0, len(d.Results))
	for _, r := range d.Results {
		records = append(records, domain.AnswerRecord{
			StudentID:  string(r.StudentID),
			QuestionID: string(r.QuestionID),
			Answer:     strings.TrimSpace(r.Answer),
		})
	}
	return records
}

func fromDomain(exam domain.Exam, subjectID int64) (createExamRequest, error) {
	req := createExamRequest{
		SubjectID:   subjectID,
		Title:       exam.Title,
		Description: exam.Description,
		Questions:   make([]questionDTO, 0, len(exam.Questions)),
	}
	if id, err := strconv.ParseInt(strings.TrimSpace(exam.Subject), 10, 64); err == nil {
		req.SubjectID = id
	}
	if exam.Date != nil {
		req.Date = exam.Date.UTC().Format("2006-01-02")
	}
	for i, q := range exam.Questions {
		if len(q.Options) > maxUpstreamOptions {
			return createExamRequest{}, &domain.ValidationError{
				Field:  fmt.Sprintf("questions[%d].options", i),
				Reason: fmt.Sprintf("the exam API accepts at most %d options", maxUpstreamOptions),
			}
		}
		slots := make([]string, maxUpstreamOptions)
		copy(slots, q.Options)
		req.Questions = append(req.Questions, questionDTO{
			Prompt:  q.Prompt,
			Correct: domain.OptionLabel(q.Correct),
			A:       slots[0],
			B:       slots[1],
			C:       slots[2],
			D:       slots[3],
			E:       slots[4],
		})
	}
	return req, nil
}

func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func trimTrailingEmpty(options []string) []string {
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = strings.TrimSpace(o)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}
