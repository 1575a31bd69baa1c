package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/folioenrich/folioenrich/internal/enrich"
	"github.com/folioenrich/folioenrich/internal/jobstore"
	"github.com/folioenrich/folioenrich/internal/model"
	"github.com/folioenrich/folioenrich/internal/ontology"
	"github.com/folioenrich/folioenrich/internal/pipeline"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := model.DefaultConfig()
	acc := ontology.NewStore([]ontology.Class{
		{
			IRI:            "folio:MotionToDismiss",
			PreferredLabel: "Motion to Dismiss",
			Branches:       []string{"Legal Concepts"},
		},
	}, nil)
	store, err := jobstore.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("jobstore: %v", err)
	}
	pipe := pipeline.New(cfg, nil, acc, nil, nil, nil)
	return New(enrich.New(cfg, nil, pipe, store), nil).Router()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func submitAndWait(t *testing.T, h http.Handler) string {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/v1/jobs",
		`{"text":"The defendant filed a Motion to Dismiss.","format":"plain_text"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		sw := do(t, h, http.MethodGet, "/api/v1/jobs/"+resp.JobID, "")
		var st enrich.Status
		if err := json.Unmarshal(sw.Body.Bytes(), &st); err == nil {
			switch st.State {
			case model.JobCompleted, model.JobCompletedWithWarnings:
				return resp.JobID
			case model.JobFailed, model.JobCancelled:
				t.Fatalf("job ended %s: %s", st.State, st.Error)
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job did not finish")
	return ""
}

func TestSubmitStatusResult(t *testing.T) {
	h := testRouter(t)
	id := submitAndWait(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/jobs/"+id+"/result?partial=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("result status = %d", w.Code)
	}
	var res model.JobResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(res.Annotations) == 0 {
		t.Fatal("no annotations in result")
	}
	if res.TextSHA256 == "" {
		t.Error("missing text digest")
	}
}

func TestRejectAndLineageRoutes(t *testing.T) {
	h := testRouter(t)
	id := submitAndWait(t, h)

	w := do(t, h, http.MethodGet, "/api/v1/jobs/"+id+"/result?partial=true", "")
	var res model.JobResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	aid := res.Annotations[0].ID

	w = do(t, h, http.MethodPost, "/api/v1/jobs/"+id+"/annotations/"+aid+"/reject", `{"reason":"wrong"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("reject status = %d body = %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodGet, "/api/v1/jobs/"+id+"/annotations/"+aid+"/lineage", "")
	if w.Code != http.StatusOK {
		t.Fatalf("lineage status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "rejected") {
		t.Errorf("lineage missing rejection: %s", w.Body.String())
	}
}

func TestUnknownJobIs404(t *testing.T) {
	h := testRouter(t)
	w := do(t, h, http.MethodGet, "/api/v1/jobs/6bb7ddcc-0000-0000-0000-000000000000", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestBadJobIDIs400(t *testing.T) {
	h := testRouter(t)
	w := do(t, h, http.MethodGet, "/api/v1/jobs/not-a-uuid", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := testRouter(t)
	w := do(t, h, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}
