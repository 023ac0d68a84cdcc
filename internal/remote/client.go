// Package remote adapts an upstream exam REST API to the exam and result
// repositories. Payloads from the API are loosely typed and get validated
// here before they reach grading.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"exam-service/internal/auth"
	"exam-service/internal/domain"
	"exam-service/internal/grading"
	"exam-service/internal/logger"
)

type Options struct {
	BaseURL   string
	Timeout   time.Duration
	SubjectID int64
}

// Client talks to the upstream API with a bearer token obtained by Login.
type Client struct {
	baseURL    string
	httpClient *http.Client
	subjectID  int64
	log        *logger.Logger

	mu    sync.RWMutex
	token string
}

func New(opts Options, log *logger.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		subjectID:  opts.SubjectID,
		log:        log.With("client", "RemoteExamAPI"),
	}
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, login, password string) (auth.Session, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/v1/auth/login", loginRequest{Login: login, Password: password}, &resp)
	if err != nil {
		var upErr *domain.UpstreamError
		if errors.As(err, &upErr) && (upErr.StatusCode == http.StatusUnauthorized ||
			upErr.StatusCode == http.StatusForbidden || upErr.StatusCode == http.StatusBadRequest) {
			return auth.Session{}, fmt.Errorf("%w: %w", domain.ErrInvalidCredentials, upErr)
		}
		return auth.Session{}, err
	}
	if resp.Token == "" {
		return auth.Session{}, &domain.UpstreamError{StatusCode: http.StatusOK, Message: "login response carried no token"}
	}

	session := auth.Session{Token: resp.Token}
	if t := parseDate(resp.CreatedAt); t != nil {
		session.IssuedAt = *t
	}
	if t := parseDate(resp.ExpiresAt); t != nil {
		session.ExpiresAt = *t
	} else if claims, err := auth.Decode(resp.Token); err == nil && claims.ExpiresAt != nil {
		// display hint only; the upstream enforces expiry
		session.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	c.SetToken(resp.Token)
	return session, nil
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) CreateExam(ctx context.Context, exam domain.Exam) (domain.Exam, error) {
	req, err := fromDomain(exam, c.subjectID)
	if err != nil {
		return domain.Exam{}, err
	}
	var created examDTO
	if err := c.do(ctx, http.MethodPost, "/prova/cadastro", req, &created); err != nil {
		return domain.Exam{}, err
	}
	if created.ID == "" {
		return domain.Exam{}, &domain.UpstreamError{StatusCode: http.StatusOK, Message: "created exam carries no id"}
	}
	out, err := created.toDomain()
	if err != nil {
		return domain.Exam{}, err
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = exam.CreatedAt
	}
	return out, nil
}

func (c *Client) GetExam(ctx context.Context, id string) (domain.Exam, error) {
	dto, err := c.fetchExam(ctx, id)
	if err != nil {
		return domain.Exam{}, err
	}
	return dto.toDomain()
}

// ListExams fetches every exam and filters locally. Exams the API returns in
// an unusable shape are skipped and logged.
func (c *Client) ListExams(ctx context.Context, filter domain.ExamFilter) ([]domain.Exam, error) {
	var dtos []examDTO
	if err := c.do(ctx, http.MethodGet, "/prova", nil, &dtos); err != nil {
		return nil, err
	}
	exams := make([]domain.Exam, 0, len(dtos))
	for _, dto := range dtos {
		exam, err := dto.toDomain()
		if err != nil {
			c.log.Warn("skipping malformed exam", "exam_id", string(dto.ID), "error", err)
			continue
		}
		if filter.OwnerID != "" && exam.OwnerID != filter.OwnerID {
			continue
		}
		if filter.ActiveOnly && !exam.Active {
			continue
		}
		exams = append(exams, exam)
	}
	return exams, nil
}

func (c *Client) DeleteExam(ctx context.Context, id string) error {
	return notFoundAs(c.do(ctx, http.MethodDelete, "/prova/"+url.PathEscape(id), nil, nil), domain.ErrExamNotFound)
}

// SetExamActive is not offered by the upstream API.
func (c *Client) SetExamActive(context.Context, string, bool) (domain.Exam, error) {
	return domain.Exam{}, domain.ErrUnsupported
}

// SaveResult posts the result as one answer record per question. The upstream
// keeps no submission flag, so the reject policy is checked here first.
func (c *Client) SaveResult(ctx context.Context, result domain.Result, policy domain.DuplicatePolicy) (domain.Result, error) {
	if policy != domain.DuplicateOverwrite {
		_, err := c.FindResult(ctx, result.ExamID, result.Student.ID)
		switch {
		case err == nil:
			return domain.Result{}, domain.ErrDuplicateSubmission
		case !errors.Is(err, domain.ErrResultNotFound):
			return domain.Result{}, err
		}
	}

	exam, err := c.GetExam(ctx, result.ExamID)
	if err != nil {
		return domain.Result{}, err
	}
	records := make([]answerDTO, 0, len(exam.Questions))
	for _, q := range exam.Questions {
		answer, ok := result.Answers[q.ID]
		if !ok {
			continue
		}
		records = append(records, answerDTO{
			StudentID:  flexID(result.Student.ID),
			QuestionID: flexID(q.ID),
			Answer:     domain.OptionLabel(answer),
			Correct:    answer == q.Correct,
		})
	}
	path := "/prova/" + url.PathEscape(result.ExamID) + "/respostas"
	if err := c.do(ctx, http.MethodPost, path, records, nil); err != nil {
		return domain.Result{}, notFoundAs(err, domain.ErrExamNotFound)
	}
	return result, nil
}

// ListResults derives one result per student from the exam's answer records.
func (c *Client) ListResults(ctx context.Context, examID string) ([]domain.Result, error) {
	dto, err := c.fetchExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	exam, err := dto.toDomain()
	if err != nil {
		return nil, err
	}
	return grading.GroupAnswerRecords(exam, dto.answerRecords()), nil
}

func (c *Client) FindResult(ctx context.Context, examID, studentID string) (domain.Result, error) {
	results, err := c.ListResults(ctx, examID)
	if err != nil {
		return domain.Result{}, err
	}
	for _, r := range results {
		if r.Student.ID == studentID {
			return r, nil
		}
	}
	return domain.Result{}, domain.ErrResultNotFound
}

func (c *Client) fetchExam(ctx context.Context, id string) (examDTO, error) {
	var dto examDTO
	if err := c.do(ctx, http.MethodGet, "/prova/"+url.PathEscape(id), nil, &dto); err != nil {
		return examDTO{}, notFoundAs(err, domain.ErrExamNotFound)
	}
	return dto, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", domain.ErrUpstream, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upErr := &domain.UpstreamError{StatusCode: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			upErr.Message = strings.TrimSpace(eb.Message)
		}
		c.log.Debug("upstream request failed", "method", method, "path", path, "status", resp.StatusCode)
		return upErr
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return verr
		}
		return fmt.Errorf("%w: decode %s: %v", domain.ErrUpstream, path, err)
	}
	return nil
}

func notFoundAs(err error, target error) error {
	var upErr *domain.UpstreamError
	if errors.As(err, &upErr) && upErr.StatusCode == http.StatusNotFound {
		return target
	}
	return err
}
