package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveMutation("create_snippet", "ok", time.Now())
	ObserveSearch(time.Now())
	IndexRebuilt("load", 3)
	Backup("create", errors.New("boom"))
	SetEventClients(2)
	EventResync()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`snix_store_mutations_total{op="create_snippet",result="ok"}`,
		`snix_index_rebuilds_total{reason="load"}`,
		`snix_index_snippets 3`,
		`snix_backup_operations_total{op="create",result="error"}`,
		`snix_index_search_duration_seconds_count`,
		`snix_events_clients 2`,
		`snix_events_resyncs_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
