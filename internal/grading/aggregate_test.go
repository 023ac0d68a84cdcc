package grading

import (
	"math"
	"testing"

	"exam-service/internal/domain"
)

func resultWith(name string, value float64) domain.Result {
	return domain.Result{Student: domain.Student{ID: name, Name: name}, Score: domain.Score{Value: value, Total: 10}}
}

func TestAggregateEmptyIsAbsent(t *testing.T) {
	stats, ok := Aggregate(nil)
	if ok {
		t.Fatalf("expected no stats for empty input")
	}
	if math.IsNaN(stats.Mean) {
		t.Fatalf("zero value must not carry NaN")
	}
	report := BuildReport(domain.Exam{ID: "e"}, nil)
	if report.Stats != nil || len(report.Results) != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

func TestAggregateBasicStatistics(t *testing.T) {
	stats, ok := Aggregate([]domain.Result{
		resultWith("a", 10.0),
		resultWith("b", 5.0),
		resultWith("c", 0.0),
	})
	if !ok {
		t.Fatalf("expected stats")
	}
	if stats.Count != 3 || stats.Mean != 5.0 || stats.Max != 10.0 || stats.Min != 0.0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.PassCount != 1 {
		t.Fatalf("expected 1 pass, got %d", stats.PassCount)
	}
	if got := Format(stats.PassRate); got != "33.3" {
		t.Fatalf("expected pass rate 33.3, got %s", got)
	}
	if got := Format(stats.Mean); got != "5.0" {
		t.Fatalf("expected mean 5.0, got %s", got)
	}
}

func TestAggregatePassThresholdIsInclusive(t *testing.T) {
	stats, _ := Aggregate([]domain.Result{resultWith("a", 7.0), resultWith("b", 6.9)})
	if stats.PassCount != 1 || stats.PassRate != 50 {
		t.Fatalf("expected exactly the 7.0 to pass, got %+v", stats)
	}
}

func TestAggregateKeepsFullPrecisionMean(t *testing.T) {
	stats, _ := Aggregate([]domain.Result{resultWith("a", 10), resultWith("b", 10), resultWith("c", 9.9)})
	if stats.Mean == 10 || Format(stats.Mean) != "10.0" {
		t.Fatalf("expected unrounded mean that displays as 10.0, got %v", stats.Mean)
	}
}

func TestRankIsStableAcrossRuns(t *testing.T) {
	input := []domain.Result{
		resultWith("first", 5.0),
		resultWith("top", 9.0),
		resultWith("second", 5.0),
		resultWith("third", 5.0),
		resultWith("low", 1.0),
	}
	want := []string{"top", "first", "second", "third", "low"}
	for run := 0; run < 20; run++ {
		ranked := Rank(input)
		for i, r := range ranked {
			if r.Student.ID != want[i] {
				t.Fatalf("run %d position %d: expected %s, got %s", run, i, want[i], r.Student.ID)
			}
		}
	}
	if input[0].Student.ID != "first" || input[1].Student.ID != "top" {
		t.Fatalf("rank must not reorder its input")
	}
}

func TestRankAttachesStatus(t *testing.T) {
	ranked := Rank([]domain.Result{resultWith("a", 4.9), resultWith("b", 7.0), resultWith("c", 5.0)})
	got := []domain.Status{ranked[0].Status, ranked[1].Status, ranked[2].Status}
	want := []domain.Status{domain.StatusApproved, domain.StatusRemedial, domain.StatusFailed}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
