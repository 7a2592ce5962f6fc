package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/studiowebux/postdad/internal/dispatch"
	"github.com/studiowebux/postdad/internal/environment"
	"github.com/studiowebux/postdad/internal/history"
	"github.com/studiowebux/postdad/internal/types"
)

func newPipeline(t *testing.T) (*Pipeline, *environment.Store, *history.Manager) {
	t.Helper()
	env := environment.NewStore(types.Environment{
		Name:      "test",
		Variables: map[string]string{"greeting": "hello"},
	})
	hist, err := history.NewManager(":memory:")
	if err != nil {
		t.Fatalf("history manager: %v", err)
	}
	t.Cleanup(func() { hist.Close() })
	return New(env, dispatch.New(), hist), env, hist
}

func TestExecuteFullSequence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token": "abc-123", "user": {"id": 42}}`))
	}))
	defer server.Close()

	p, env, hist := newPipeline(t)
	def := &types.RequestDefinition{
		Name:       "login",
		Method:     "POST",
		URL:        server.URL + "/login",
		PostScript: `test("status ok", status_code() == 200);`,
		Chain: []types.ChainRule{
			{Target: "auth_token", Path: "token"},
			{Target: "user_id", Path: "user.id"},
		},
	}

	result := p.Execute(context.Background(), def)
	if !result.Success() {
		t.Fatalf("expected success, got failure: %+v", result.Failure)
	}
	if !result.AssertionsPassed() {
		t.Errorf("assertions should pass: %+v", result.Assertions)
	}

	_, chain := env.Snapshot()
	if chain["auth_token"] != "abc-123" {
		t.Errorf("auth_token = %q, want abc-123", chain["auth_token"])
	}
	if chain["user_id"] != "42" {
		t.Errorf("user_id = %q, want 42", chain["user_id"])
	}

	count, err := hist.Count("login")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("history count = %d, want 1", count)
	}
}

func TestExecutePreScriptMutatesRequest(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Trace")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, _, _ := newPipeline(t)
	def := &types.RequestDefinition{
		Name:      "traced",
		Method:    "GET",
		URL:       server.URL,
		PreScript: `set_header("X-Trace", get_var("greeting"));`,
	}

	result := p.Execute(context.Background(), def)
	if !result.Success() {
		t.Fatalf("expected success: %+v", result.Failure)
	}
	if gotHeader != "hello" {
		t.Errorf("X-Trace = %q, want hello", gotHeader)
	}
}

func TestExecutePreScriptBindingsVisibleToNextExecution(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, env, _ := newPipeline(t)
	first := &types.RequestDefinition{
		Name:      "writer",
		Method:    "GET",
		URL:       server.URL,
		PreScript: `set_var("run_id", "r-77");`,
	}
	if result := p.Execute(context.Background(), first); !result.Success() {
		t.Fatalf("writer failed: %+v", result.Failure)
	}

	_, chain := env.Snapshot()
	if chain["run_id"] != "r-77" {
		t.Errorf("run_id = %q, want r-77", chain["run_id"])
	}
}

func TestExecutePreScriptFault(t *testing.T) {
	p, _, hist := newPipeline(t)
	def := &types.RequestDefinition{
		Name:      "broken",
		Method:    "GET",
		URL:       "http://example.invalid/",
		PreScript: `no_such_function();`,
	}

	result := p.Execute(context.Background(), def)
	if result.Failure == nil {
		t.Fatal("expected failure")
	}
	if result.Failure.Kind != types.FailureScript {
		t.Errorf("kind = %q, want script", result.Failure.Kind)
	}
	if result.Failure.Stage != types.StagePreScript {
		t.Errorf("stage = %q, want pre-script", result.Failure.Stage)
	}

	count, err := hist.Count("broken")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("failed execution should still be recorded, count = %d", count)
	}
}

func TestExecuteTransportFailure(t *testing.T) {
	p, _, _ := newPipeline(t)
	def := &types.RequestDefinition{
		Name:   "unreachable",
		Method: "GET",
		URL:    "http://127.0.0.1:9/",
	}

	result := p.Execute(context.Background(), def)
	if result.Failure == nil {
		t.Fatal("expected failure")
	}
	if result.Failure.Kind != types.FailureTransport {
		t.Errorf("kind = %q, want transport", result.Failure.Kind)
	}
	if result.Failure.Stage != types.StageDispatching {
		t.Errorf("stage = %q, want dispatching", result.Failure.Stage)
	}
}

func TestExecutePostScriptFaultKeepsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	p, _, _ := newPipeline(t)
	def := &types.RequestDefinition{
		Name:       "post-fault",
		Method:     "GET",
		URL:        server.URL,
		PostScript: `test("created", status_code() == 201); boom();`,
	}

	result := p.Execute(context.Background(), def)
	if result.Failure == nil || result.Failure.Stage != types.StagePostScript {
		t.Fatalf("expected post-script failure, got %+v", result.Failure)
	}
	if result.Status != http.StatusCreated {
		t.Errorf("status = %d, want 201 preserved alongside failure", result.Status)
	}
	if len(result.Assertions) != 1 || !result.Assertions[0].Passed {
		t.Errorf("assertions before the fault should survive: %+v", result.Assertions)
	}
}

func TestExecuteUnresolvedVariableWarns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, _, _ := newPipeline(t)
	def := &types.RequestDefinition{
		Name:    "warned",
		Method:  "GET",
		URL:     server.URL,
		Headers: []types.Header{{Name: "X-Missing", Value: "{{nope}}"}},
	}

	result := p.Execute(context.Background(), def)
	if !result.Success() {
		t.Fatalf("expected success: %+v", result.Failure)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "nope") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected warning mentioning the unresolved variable, got %v", result.Warnings)
	}
}

func TestExecuteAsyncDelivers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, _, _ := newPipeline(t)
	def := &types.RequestDefinition{Name: "async", Method: "GET", URL: server.URL}

	ch := p.ExecuteAsync(context.Background(), def)
	result := <-ch
	if !result.Success() {
		t.Fatalf("expected success: %+v", result.Failure)
	}
	if _, open := <-ch; open {
		t.Error("channel should be closed after delivery")
	}
}
