package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/swaperoo/pkg/bluegreen"
	"github.com/go-go-golems/swaperoo/pkg/es"
	"github.com/go-go-golems/swaperoo/pkg/estest"
	"github.com/go-go-golems/swaperoo/pkg/mapping"
	"github.com/go-go-golems/swaperoo/pkg/session"
)

var testMapping = mapping.Static(`{"properties":{"id":{"type":"keyword"}}}`)

func newTestServer(t *testing.T) (*Server, *estest.Cluster) {
	t.Helper()
	cluster := estest.NewCluster()
	t.Cleanup(cluster.Close)

	gateway := es.NewGateway(cluster.Client(t))
	coordinator := bluegreen.NewCoordinator(
		gateway,
		bluegreen.NewRegistry(gateway),
		bluegreen.NewLifecycle(gateway),
		bluegreen.NewProbe(gateway),
	)
	sessions := session.NewManager(gateway, coordinator, testMapping,
		session.WithCompleteWaitTimeout(300*time.Millisecond))

	return New(gateway, coordinator, sessions, "products"), cluster
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestBatchLifecycleOverHTTP(t *testing.T) {
	s, cluster := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost,
		"/api/v1/products/products/batch/start?strategy=safe&estimatedTotal=3", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sess session.Session
	decodeJSON(t, rec, &sess)
	assert.True(t, strings.HasPrefix(sess.ID, "batch_"))
	assert.Equal(t, bluegreen.Blue, sess.TargetColor)
	assert.True(t, cluster.HasIndex(sess.TargetIndex))

	rec = doRequest(t, s, http.MethodPost,
		"/api/v1/products/batch/"+sess.ID+"/process",
		`[{"id":"A"},{"id":"B"},{"id":"C"}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var batch session.BatchResult
	decodeJSON(t, rec, &batch)
	assert.Equal(t, 1, batch.BatchNumber)
	assert.Equal(t, 3, batch.Successful)
	require.NotNil(t, batch.Progress)
	assert.InDelta(t, 100.0, *batch.Progress, 0.01)

	rec = doRequest(t, s, http.MethodGet,
		"/api/v1/products/batch/"+sess.ID+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status session.Session
	decodeJSON(t, rec, &status)
	assert.Equal(t, 3, status.ProcessedDocuments)
	assert.Equal(t, session.StatusActive, status.Status)

	rec = doRequest(t, s, http.MethodPost,
		"/api/v1/products/batch/"+sess.ID+"/complete", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var state bluegreen.DeploymentState
	decodeJSON(t, rec, &state)
	assert.Equal(t, bluegreen.StatusReadyForSwap, state.Status)
	assert.Equal(t, sess.TargetIndex, state.StagingIndex)

	// safe strategy leaves the alias untouched until promote is called
	assert.Empty(t, cluster.AliasIndices("products"))

	rec = doRequest(t, s, http.MethodPost,
		"/api/v1/products/products/promote?targetIndex="+sess.TargetIndex, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{sess.TargetIndex}, cluster.AliasIndices("products"))
}

func TestProcessBatchValidationOverHTTP(t *testing.T) {
	s, cluster := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost,
		"/api/v1/products/products/batch/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sess session.Session
	decodeJSON(t, rec, &sess)

	// duplicate ids reject the batch before any write
	rec = doRequest(t, s, http.MethodPost,
		"/api/v1/products/batch/"+sess.ID+"/process",
		`[{"id":"A"},{"id":"A"}]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, cluster.BulkCalls())

	rec = doRequest(t, s, http.MethodPost,
		"/api/v1/products/batch/"+sess.ID+"/process", `[]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost,
		"/api/v1/products/batch/unknown/process", `[{"id":"A"}]`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelSessionOverHTTP(t *testing.T) {
	s, cluster := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost,
		"/api/v1/products/products/batch/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sess session.Session
	decodeJSON(t, rec, &sess)

	rec = doRequest(t, s, http.MethodPost,
		"/api/v1/products/batch/"+sess.ID+"/cancel", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, cluster.HasIndex(sess.TargetIndex))

	// cancelling twice conflicts with the terminal status
	rec = doRequest(t, s, http.MethodPost,
		"/api/v1/products/batch/"+sess.ID+"/cancel", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActiveSessionsOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/products/batch/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = doRequest(t, s, http.MethodPost,
		"/api/v1/products/products/batch/start", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/products/batch/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var active []session.Session
	decodeJSON(t, rec, &active)
	assert.Len(t, active, 1)
}

func TestStartSessionRejectsUnknownStrategy(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost,
		"/api/v1/products/products/batch/start?strategy=yolo", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost,
		"/api/v1/products/products/batch/start?estimatedTotal=-5", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPromoteValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost,
		"/api/v1/products/products/promote", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost,
		"/api/v1/products/products/promote?targetIndex=missing_blue_20260101000000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAliasStatusOverHTTP(t *testing.T) {
	s, cluster := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/products/products/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var empty aliasStatusResponse
	decodeJSON(t, rec, &empty)
	assert.False(t, empty.Exists)
	assert.Empty(t, empty.Indices)

	cluster.SeedIndex("products_blue_20260101000000")
	cluster.SeedAlias("products", "products_blue_20260101000000")

	rec = doRequest(t, s, http.MethodGet, "/api/v1/products/products/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var bound aliasStatusResponse
	decodeJSON(t, rec, &bound)
	assert.True(t, bound.Exists)
	assert.Equal(t, "products_blue_20260101000000", bound.ActiveIndex)
	assert.Equal(t, bluegreen.Blue, bound.ActiveColor)
	assert.Equal(t, []string{"products_blue_20260101000000"}, bound.Indices)
}

func TestTextSearchOverHTTP(t *testing.T) {
	s, cluster := newTestServer(t)

	cluster.SeedIndex("products_blue_20260101000000")
	cluster.SeedDoc("products_blue_20260101000000", "1",
		`{"id":"1","ProductName":"widget"}`)
	cluster.SeedAlias("products", "products_blue_20260101000000")

	rec := doRequest(t, s, http.MethodPost,
		"/api/v1/products/search/text", `{"query":"widget"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var parsed struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
		} `json:"hits"`
	}
	decodeJSON(t, rec, &parsed)
	assert.Equal(t, 1, parsed.Hits.Total.Value)

	rec = doRequest(t, s, http.MethodPost,
		"/api/v1/products/search/text", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost,
		"/api/v1/products/search/text", `{"query":"widget","limit":500}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCriteriaSearchOverHTTP(t *testing.T) {
	s, cluster := newTestServer(t)

	cluster.SeedIndex("products_blue_20260101000000")
	cluster.SeedDoc("products_blue_20260101000000", "1",
		`{"id":"1","Brand":"acme"}`)
	cluster.SeedAlias("products", "products_blue_20260101000000")

	rec := doRequest(t, s, http.MethodPost,
		"/api/v1/products/search/criteria", `{"criteria":{"Brand":"acme"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, s, http.MethodPost,
		"/api/v1/products/search/criteria", `{"criteria":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProductOverHTTP(t *testing.T) {
	s, cluster := newTestServer(t)

	cluster.SeedIndex("products_blue_20260101000000")
	cluster.SeedDoc("products_blue_20260101000000", "42",
		`{"id":"42","ProductName":"widget"}`)
	cluster.SeedAlias("products", "products_blue_20260101000000")

	rec := doRequest(t, s, http.MethodGet, "/api/v1/products/42", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var doc struct {
		Found bool `json:"found"`
	}
	decodeJSON(t, rec, &doc)
	assert.True(t, doc.Found)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/products/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthCheckOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/products/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health healthResponse
	decodeJSON(t, rec, &health)
	assert.Equal(t, "ok", health.API)
	assert.True(t, health.Elasticsearch.Connected)
	assert.Equal(t, "estest", health.Elasticsearch.Cluster)
}
