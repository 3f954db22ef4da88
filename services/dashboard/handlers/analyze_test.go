// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// Tests for the clustering analysis handler.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runlens-ai/runlens/pkg/runs"
	"github.com/runlens-ai/runlens/services/dashboard/datatypes"
	"github.com/runlens-ai/runlens/services/insights"
	"github.com/runlens-ai/runlens/services/llm"
)

// =============================================================================
// Test Setup
// =============================================================================

// MockLLMClient returns a canned response for insight generation.
type MockLLMClient struct {
	response string
	err      error
	prompts  []string
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func newTestAnalyzer(t *testing.T, client llm.LLMClient) *insights.Analyzer {
	t.Helper()
	analyzer, err := insights.NewAnalyzer(insights.Config{
		Client:   client,
		Executor: fastExecutor(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return analyzer
}

// clusterProjectJSON holds six runs in three performance tiers so the
// default k=3 finds clean clusters.
const clusterProjectJSON = `{"runs": [
	{"id": "r1", "name": "lr-high-a", "state": "finished", "created_at": "2025-06-01T09:00:00Z", "runtime": 900,
	 "summary": {"accuracy": 0.50, "loss": 1.20}, "config": {"learning_rate": 0.1}},
	{"id": "r2", "name": "lr-high-b", "state": "finished", "created_at": "2025-06-01T09:30:00Z", "runtime": 910,
	 "summary": {"accuracy": 0.52, "loss": 1.10}, "config": {"learning_rate": 0.1}},
	{"id": "r3", "name": "lr-mid-a", "state": "finished", "created_at": "2025-06-01T10:00:00Z", "runtime": 1800,
	 "summary": {"accuracy": 0.75, "loss": 0.50}, "config": {"learning_rate": 0.01}},
	{"id": "r4", "name": "lr-mid-b", "state": "finished", "created_at": "2025-06-01T10:30:00Z", "runtime": 1820,
	 "summary": {"accuracy": 0.76, "loss": 0.48}, "config": {"learning_rate": 0.01}},
	{"id": "r5", "name": "lr-low-a", "state": "finished", "created_at": "2025-06-01T11:00:00Z", "runtime": 3600,
	 "summary": {"accuracy": 0.93, "loss": 0.12}, "config": {"learning_rate": 0.001}},
	{"id": "r6", "name": "lr-low-b", "state": "finished", "created_at": "2025-06-01T11:30:00Z", "runtime": 3620,
	 "summary": {"accuracy": 0.94, "loss": 0.10}, "config": {"learning_rate": 0.001}}
]}`

func analyzeStub() *MockHTTPClient {
	return &MockHTTPClient{DoFunc: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, clusterProjectJSON), nil
	}}
}

const structuredInsightJSON = `{
	"summary": "Three performance tiers driven by learning rate.",
	"insights": ["Lower learning rates reach higher accuracy"],
	"recommendations": ["Sweep around 0.001"],
	"key_findings": ["Best cluster averages 0.935 accuracy"]
}`

// =============================================================================
// HandleAnalyze Tests
// =============================================================================

func TestHandleAnalyze_Success(t *testing.T) {
	router := createTestRouter("POST", "/v1/analyze",
		HandleAnalyze(newTestWandb(analyzeStub()), nil, nil))

	body := datatypes.AnalyzeRequest{Entity: "runlens", Project: "mnist"}
	w := performRequest(router, "POST", "/v1/analyze", body)

	assert.Equal(t, http.StatusOK, w.Code)

	var response datatypes.AnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.NotEmpty(t, response.RequestID)
	assert.Equal(t, "runlens", response.Entity)
	assert.Equal(t, 6, response.RunCount)
	require.NotNil(t, response.Outcome)
	assert.Equal(t, 3, response.Outcome.K)
	assert.Len(t, response.Outcome.Labels, 6)
	require.NotNil(t, response.Interpretation)
	assert.Len(t, response.Interpretation.Clusters, 3)
	assert.Nil(t, response.Insights)
}

func TestHandleAnalyze_InvalidJSON(t *testing.T) {
	router := createTestRouter("POST", "/v1/analyze",
		HandleAnalyze(newTestWandb(analyzeStub()), nil, nil))

	req, _ := http.NewRequest("POST", "/v1/analyze", bytes.NewBufferString("{invalid"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Contains(t, response["error"], "invalid request body")
}

func TestHandleAnalyze_RejectsTraversalEntity(t *testing.T) {
	mock := analyzeStub()
	router := createTestRouter("POST", "/v1/analyze", HandleAnalyze(newTestWandb(mock), nil, nil))

	body := datatypes.AnalyzeRequest{Entity: "../../etc", Project: "mnist"}
	w := performRequest(router, "POST", "/v1/analyze", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, mock.Calls())
}

func TestHandleAnalyze_RejectsOversizedK(t *testing.T) {
	mock := analyzeStub()
	router := createTestRouter("POST", "/v1/analyze", HandleAnalyze(newTestWandb(mock), nil, nil))

	body := datatypes.AnalyzeRequest{Entity: "runlens", Project: "mnist", K: 25}
	w := performRequest(router, "POST", "/v1/analyze", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, mock.Calls())
}

func TestHandleAnalyze_EmptyProject(t *testing.T) {
	mock := &MockHTTPClient{DoFunc: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"runs": []}`), nil
	}}
	router := createTestRouter("POST", "/v1/analyze", HandleAnalyze(newTestWandb(mock), nil, nil))

	body := datatypes.AnalyzeRequest{Entity: "runlens", Project: "empty"}
	w := performRequest(router, "POST", "/v1/analyze", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Contains(t, response["error"], "has no runs")
}

func TestHandleAnalyze_UpstreamFailure(t *testing.T) {
	mock := &MockHTTPClient{DoFunc: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, `{"error": "outage"}`), nil
	}}
	router := createTestRouter("POST", "/v1/analyze", HandleAnalyze(newTestWandb(mock), nil, nil))

	body := datatypes.AnalyzeRequest{Entity: "runlens", Project: "mnist"}
	w := performRequest(router, "POST", "/v1/analyze", body)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandleAnalyze_WithInsights(t *testing.T) {
	mockLLM := &MockLLMClient{response: structuredInsightJSON}
	router := createTestRouter("POST", "/v1/analyze",
		HandleAnalyze(newTestWandb(analyzeStub()), newTestAnalyzer(t, mockLLM), nil))

	body := datatypes.AnalyzeRequest{Entity: "runlens", Project: "mnist", WithInsights: true}
	w := performRequest(router, "POST", "/v1/analyze", body)

	assert.Equal(t, http.StatusOK, w.Code)

	var response datatypes.AnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.NotNil(t, response.Insights)
	assert.Equal(t, "Three performance tiers driven by learning rate.", response.Insights.Summary)
	assert.Len(t, response.Insights.Insights, 1)
	assert.Len(t, mockLLM.prompts, 1)
}

// An LLM failure degrades the response to the numeric result instead
// of failing the whole analysis.
func TestHandleAnalyze_InsightFailureDegrades(t *testing.T) {
	mockLLM := &MockLLMClient{err: errors.New("model overloaded")}
	router := createTestRouter("POST", "/v1/analyze",
		HandleAnalyze(newTestWandb(analyzeStub()), newTestAnalyzer(t, mockLLM), nil))

	body := datatypes.AnalyzeRequest{Entity: "runlens", Project: "mnist", WithInsights: true}
	w := performRequest(router, "POST", "/v1/analyze", body)

	assert.Equal(t, http.StatusOK, w.Code)

	var response datatypes.AnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Nil(t, response.Insights)
	require.NotNil(t, response.Outcome)
	assert.Len(t, response.Outcome.Labels, 6)
}

// =============================================================================
// runAnalysis Tests
// =============================================================================

func TestRunAnalysis_ProgressStages(t *testing.T) {
	wb := newTestWandb(analyzeStub())

	req := &datatypes.AnalyzeRequest{Entity: "runlens", Project: "mnist"}
	req.EnsureDefaults()

	var stages []string
	var percents []int
	resp, err := runAnalysis(context.Background(), wb, nil, req,
		func(stage, message string, percent int) {
			stages = append(stages, stage)
			percents = append(percents, percent)
		})

	require.NoError(t, err)
	assert.Equal(t, []string{
		datatypes.StageFetch,
		datatypes.StageFeatures,
		datatypes.StageCluster,
		datatypes.StageInterpret,
	}, stages)
	for i := 1; i < len(percents); i++ {
		assert.Greater(t, percents[i], percents[i-1], "stage %s", stages[i])
	}
	assert.Equal(t, 6, resp.RunCount)
}

func TestRunAnalysis_InsightStageReported(t *testing.T) {
	wb := newTestWandb(analyzeStub())
	analyzer := newTestAnalyzer(t, &MockLLMClient{response: structuredInsightJSON})

	req := &datatypes.AnalyzeRequest{Entity: "runlens", Project: "mnist", WithInsights: true}
	req.EnsureDefaults()

	var stages []string
	resp, err := runAnalysis(context.Background(), wb, analyzer, req,
		func(stage, message string, percent int) {
			stages = append(stages, stage)
		})

	require.NoError(t, err)
	assert.Equal(t, datatypes.StageInsights, stages[len(stages)-1])
	require.NotNil(t, resp.Insights)
}

func TestFindRun(t *testing.T) {
	rs := []runs.Run{{ID: "r1"}, {ID: "r2"}, {ID: "r3"}}

	assert.Nil(t, findRun(rs, ""))
	assert.Nil(t, findRun(rs, "missing"))

	found := findRun(rs, "r3")
	require.NotNil(t, found)
	assert.Equal(t, "r3", found.ID)
}
