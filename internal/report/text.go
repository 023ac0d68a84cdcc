// Package report renders a class report as deterministic plain text and reads
// the per-student lines back.
package report

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"exam-service/internal/domain"
	"exam-service/internal/grading"
)

const (
	statsHeader   = "CLASS STATISTICS:"
	resultsHeader = "INDIVIDUAL RESULTS:"
	noSubmissions = "No submissions yet."
	dateLayout    = "2006-01-02"
)

// Line is one parsed per-student row of an exported report.
type Line struct {
	Name    string
	Score   float64
	Correct int
	Total   int
	Status  domain.Status
}

var (
	lineRe       = regexp.MustCompile(`^(.*) - Score: (\d+\.\d) \((\d+)/(\d+)\) - (Approved|Remedial|Failed)$`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	newlineRe    = regexp.MustCompile(`[\r\n]+`)
)

// Render returns the text export of r.
func Render(r domain.ClassReport) []byte {
	var buf bytes.Buffer
	_ = Write(&buf, r)
	return buf.Bytes()
}

// Write streams the text export of r to w. The output depends only on r.
func Write(w io.Writer, r domain.ClassReport) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "Exam Report: %s\n", singleLine(r.Exam.Title))
	if r.Exam.Subject != "" {
		fmt.Fprintf(bw, "Subject: %s\n", singleLine(r.Exam.Subject))
	}
	if r.Exam.Date != nil && !r.Exam.Date.IsZero() {
		fmt.Fprintf(bw, "Date: %s\n", r.Exam.Date.UTC().Format(dateLayout))
	}
	fmt.Fprintf(bw, "Questions: %d\n\n", len(r.Exam.Questions))

	if s := r.Stats; s != nil {
		fmt.Fprintln(bw, statsHeader)
		fmt.Fprintf(bw, "Total students: %d\n", s.Count)
		fmt.Fprintf(bw, "Class mean: %s\n", grading.Format(s.Mean))
		fmt.Fprintf(bw, "Highest score: %s\n", grading.Format(s.Max))
		fmt.Fprintf(bw, "Lowest score: %s\n", grading.Format(s.Min))
		fmt.Fprintf(bw, "Approved (>=%s): %d\n", grading.Format(grading.PassThreshold), s.PassCount)
		fmt.Fprintf(bw, "Approval rate: %s%%\n\n", grading.Format(s.PassRate))
	}

	fmt.Fprintln(bw, resultsHeader)
	if len(r.Results) == 0 {
		fmt.Fprintln(bw, noSubmissions)
	}
	for _, res := range r.Results {
		fmt.Fprintf(bw, "%s - Score: %s (%d/%d) - %s\n",
			singleLine(res.DisplayName()),
			grading.Format(res.Score.Value),
			res.Score.Correct,
			res.Score.Total,
			res.Status,
		)
	}
	return bw.Flush()
}

// Parse reads the per-student lines of an export produced by Write, in the
// order they were written.
func Parse(r io.Reader) ([]Line, error) {
	sc := bufio.NewScanner(r)
	inResults := false
	lines := make([]Line, 0)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := sc.Text()
		if !inResults {
			inResults = text == resultsHeader
			continue
		}
		if text == "" || text == noSubmissions {
			continue
		}
		m := lineRe.FindStringSubmatch(text)
		if m == nil {
			return nil, fmt.Errorf("line %d: unrecognized result line %q", lineNo, text)
		}
		score, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: score: %w", lineNo, err)
		}
		correct, _ := strconv.Atoi(m[3])
		total, _ := strconv.Atoi(m[4])
		lines = append(lines, Line{
			Name:    m[1],
			Score:   score,
			Correct: correct,
			Total:   total,
			Status:  domain.Status(m[5]),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !inResults {
		return nil, fmt.Errorf("missing %q section", resultsHeader)
	}
	return lines, nil
}

// FileName is the download name for an exam's report.
func FileName(exam domain.Exam) string {
	base := strings.TrimSpace(exam.Title)
	if base == "" {
		base = exam.ID
	}
	return "report-" + whitespaceRe.ReplaceAllString(base, "-") + ".txt"
}

func singleLine(s string) string {
	return newlineRe.ReplaceAllString(s, " ")
}
