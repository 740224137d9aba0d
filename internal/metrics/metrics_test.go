package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveOperation(t *testing.T) {
	ok := testutil.ToFloat64(storeOperations.WithLabelValues("create", "ok"))
	failed := testutil.ToFloat64(storeOperations.WithLabelValues("create", "error"))

	ObserveOperation("create", nil)
	ObserveOperation("create", errors.New("boom"))
	ObserveOperation("create", errors.New("boom"))

	if got := testutil.ToFloat64(storeOperations.WithLabelValues("create", "ok")) - ok; got != 1 {
		t.Fatalf("expected 1 ok observation, got %v", got)
	}
	if got := testutil.ToFloat64(storeOperations.WithLabelValues("create", "error")) - failed; got != 2 {
		t.Fatalf("expected 2 error observations, got %v", got)
	}
}

func TestTrackInFlight(t *testing.T) {
	gauge := inFlight.WithLabelValues("delete")
	base := testutil.ToFloat64(gauge)

	done := TrackInFlight("delete")
	if got := testutil.ToFloat64(gauge) - base; got != 1 {
		t.Fatalf("expected gauge raised by 1, got %v", got)
	}
	done()
	if got := testutil.ToFloat64(gauge) - base; got != 0 {
		t.Fatalf("expected gauge back to base, got %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveCompensation(nil)
	ObserveNotice("success")
	ObserveRequest("GET", "/v1/tasks", 200, 5*time.Millisecond)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	for _, name := range []string{"taskstore_compensations_total", "notices_total", "http_requests_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output missing %s", name)
		}
	}
}
