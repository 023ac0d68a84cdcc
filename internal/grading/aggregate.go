package grading

import (
	"sort"

	"exam-service/internal/domain"
)

// Aggregate computes class statistics. ok is false when there are no results,
// in which case no statistics exist at all.
func Aggregate(results []domain.Result) (stats domain.ClassStats, ok bool) {
	if len(results) == 0 {
		return domain.ClassStats{}, false
	}

	sum := 0.0
	stats.Max = results[0].Score.Value
	stats.Min = results[0].Score.Value
	for _, r := range results {
		v := r.Score.Value
		sum += v
		if v > stats.Max {
			stats.Max = v
		}
		if v < stats.Min {
			stats.Min = v
		}
		if v >= PassThreshold {
			stats.PassCount++
		}
	}

	n := float64(len(results))
	stats.Count = len(results)
	stats.Mean = sum / n
	stats.PassRate = float64(stats.PassCount) / n * 100
	return stats, true
}

// Rank orders results by descending score for display. Equal scores keep
// their submission order. The input slice is left untouched.
func Rank(results []domain.Result) []domain.RankedResult {
	ranked := make([]domain.RankedResult, len(results))
	for i, r := range results {
		ranked[i] = domain.RankedResult{Result: r, Status: Classify(r.Score.Value)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score.Value > ranked[j].Score.Value
	})
	return ranked
}

// BuildReport assembles the class report of one exam from its results, which
// must be given in submission order.
func BuildReport(exam domain.Exam, results []domain.Result) domain.ClassReport {
	report := domain.ClassReport{Exam: exam, Results: Rank(results)}
	if stats, ok := Aggregate(results); ok {
		report.Stats = &stats
	}
	return report
}
