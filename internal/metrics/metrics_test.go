package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/exams/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"1", "2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/exams/"+id, nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/exams/{id}", "418"))
	if got != 2 {
		t.Fatalf("expected 2 requests on the pattern label, got %v", got)
	}
}

func TestObserveSubmission(t *testing.T) {
	m := New()
	m.ObserveSubmission("recorded", 7.5)
	m.ObserveSubmission("duplicate", 0)
	m.SubscriberOpened()
	m.SubscriberOpened()
	m.SubscriberClosed()

	if got := testutil.ToFloat64(m.submissions.WithLabelValues("recorded")); got != 1 {
		t.Fatalf("expected one recorded submission, got %v", got)
	}
	if got := testutil.ToFloat64(m.subscribers); got != 1 {
		t.Fatalf("expected one open subscriber, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `exam_submissions_total{outcome="duplicate"} 1`) {
		t.Fatalf("expected exposition to include duplicate counter")
	}
}
