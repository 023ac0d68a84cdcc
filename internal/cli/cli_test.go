package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"exam-service/internal/auth"
	"exam-service/internal/domain"
	"exam-service/internal/grading"
	"exam-service/internal/infra/blob"
)

func TestDecodeTokenPrintsClaims(t *testing.T) {
	svc := auth.NewService("secret", "exam-service", time.Hour, nil)
	session, err := svc.Issue(auth.Account{ID: 42, Email: "prof@example.com", Role: domain.RoleInstructor})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"decode-token", session.Token})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("decode-token: %v", err)
	}

	var claims map[string]interface{}
	if err := json.Unmarshal(out.Bytes(), &claims); err != nil {
		t.Fatalf("output is not json: %v\n%s", err, out.String())
	}
	if claims["email"] != "prof@example.com" || claims["role"] != "instructor" || claims["user"] != float64(42) {
		t.Fatalf("unexpected claims %v", claims)
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"decode-token", "not-a-token"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for malformed token")
	}
}

func TestHashPasswordMatches(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"hash-password", "s3cret"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Fatalf("printed hash does not match: %v", err)
	}
}

func TestReportCommandWritesFile(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "reports")

	bucket, err := blob.NewFSBucket(dataDir)
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	store := blob.NewStore(bucket)
	exam, err := store.CreateExam(ctx, domain.Exam{
		Title:       "Final Exam",
		Description: "all units",
		Active:      true,
		Questions: []domain.Question{
			{ID: "q1", Prompt: "1+1", Options: []string{"1", "2"}, Correct: 1},
			{ID: "q2", Prompt: "2+2", Options: []string{"4", "5"}, Correct: 0},
		},
	})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	answers := map[string]int{"q1": 1, "q2": 1}
	if _, err := store.SaveResult(ctx, domain.Result{
		ExamID:  exam.ID,
		Student: domain.Student{ID: "7", Name: "Bia"},
		Answers: answers,
		Score:   grading.Grade(exam, answers),
	}, domain.DuplicateReject); err != nil {
		t.Fatalf("save result: %v", err)
	}

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := "store:\n  backend: blob\nblob:\n  driver: fs\n  dir: " + dataDir + "\nauth:\n  secret: test\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfgPath, "report", exam.ID, "--dir", outDir})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("report: %v", err)
	}

	path := filepath.Join(outDir, "report-Final-Exam.txt")
	if strings.TrimSpace(out.String()) != path {
		t.Fatalf("expected %s printed, got %q", path, out.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(data), "Bia - Score: 5.0 (1/2) - Remedial") {
		t.Fatalf("unexpected report:\n%s", data)
	}
	entries, _ := os.ReadDir(outDir)
	if len(entries) != 1 {
		t.Fatalf("expected only the report in %s, got %d entries", outDir, len(entries))
	}
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("store:\n  backend: tape\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	err := runServer(context.Background(), cfgPath, "0")
	if err == nil || !strings.Contains(err.Error(), "unknown store backend") {
		t.Fatalf("expected invalid backend error, got %v", err)
	}
}
