package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/optilist/optilist/internal/agent"
	"github.com/optilist/optilist/internal/budget"
	"github.com/optilist/optilist/internal/config"
	"github.com/optilist/optilist/internal/orchestrator"
	"github.com/optilist/optilist/pkg/models"
)

type stubAgent struct{}

func (stubAgent) ID() string { return "stub" }

func (stubAgent) Execute(ctx context.Context, task models.AgentTask, gov *budget.Governor) models.AgentResult {
	return models.AgentResult{AgentID: "stub", Confidence: 0.9}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	gov := budget.NewGovernor(config.BudgetConfig{
		DailyCeiling:   10.00,
		PerCallCeiling: 0.25,
		Timezone:       "UTC",
	})

	reg := config.NewRegistry(map[models.WorkflowType][]config.AgentWeight{
		models.WorkflowTypePricing: {{ID: "stub", Weight: 1}},
	})

	orch := orchestrator.New(orchestrator.Config{
		Registry: reg,
		Agents:   agent.NewRegistry(stubAgent{}),
		Governor: gov,
		Deadline: time.Second,
	})
	t.Cleanup(orch.Shutdown)

	return New(":0", orch, gov)
}

func postWorkflow(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSubmitEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := postWorkflow(t, srv, `{"type":"pricing","context":{"title":"vintage camera"}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body: %s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		WorkflowID string `json:"workflow_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.WorkflowID == "" {
		t.Fatal("expected a workflow id")
	}

	// The id must be resolvable immediately.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/"+resp.WorkflowID, nil)
	getRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(getRec, req)
	if getRec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", getRec.Code)
	}
}

func TestSubmitEndpoint_Rejections(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown type", `{"type":"garage-sale"}`},
		{"missing type", `{"context":{}}`},
		{"malformed json", `{"type":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postWorkflow(t, srv, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body: %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestStatusEndpoint_NotFound(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/nope", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCancelEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := postWorkflow(t, srv, `{"type":"pricing"}`)
	var resp struct {
		WorkflowID string `json:"workflow_id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/workflows/"+resp.WorkflowID, nil)
	delRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(delRec, req)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", delRec.Code)
	}

	// Cancel of a missing id is a 404.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/workflows/nope", nil)
	delRec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(delRec, req)
	if delRec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", delRec.Code)
	}
}

func TestBudgetEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/budget", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		DailyCeiling float64 `json:"daily_ceiling"`
		SpendToday   float64 `json:"spend_today"`
		Remaining    float64 `json:"remaining"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.DailyCeiling != 10.00 {
		t.Errorf("daily_ceiling = %v, want 10.00", resp.DailyCeiling)
	}
	if resp.SpendToday != 0 || resp.Remaining != 10.00 {
		t.Errorf("spend = %v remaining = %v, want 0 and 10.00", resp.SpendToday, resp.Remaining)
	}
}
