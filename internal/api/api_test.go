package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/router"
)

type fakeRouter struct {
	invalidated map[string]string
	statuses    []router.ReplicaStatus
}

func (f *fakeRouter) Route(_ context.Context, req models.Request) models.RoutingDecision {
	return models.RoutingDecision{
		RequestID: req.ID,
		Replica:   "edge-a",
		Strategy:  "least_connections",
		Outcome:   models.OutcomeHit,
	}
}

func (f *fakeRouter) Release(models.ReplicaID) error { return nil }

func (f *fakeRouter) Invalidate(id models.ReplicaID, key string) error {
	if id != "edge-a" {
		return router.ErrUnknownReplica
	}
	f.invalidated[id.String()] = key
	return nil
}

func (f *fakeRouter) Snapshot() []router.ReplicaStatus { return f.statuses }

func doRequest(t *testing.T, rt Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	srv := NewServer("127.0.0.1:0", rt, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	srv.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestInvalidateEndpoint(t *testing.T) {
	rt := &fakeRouter{invalidated: map[string]string{}}

	rec := doRequest(t, rt, http.MethodPost, "/invalidate",
		`{"replica_id": "edge-a", "key": "movie.mp4"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "movie.mp4", rt.invalidated["edge-a"])
}

func TestInvalidateEndpointUnknownReplica(t *testing.T) {
	rt := &fakeRouter{invalidated: map[string]string{}}

	rec := doRequest(t, rt, http.MethodPost, "/invalidate",
		`{"replica_id": "ghost", "key": "movie.mp4"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidateEndpointRejectsEmptyKey(t *testing.T) {
	rt := &fakeRouter{invalidated: map[string]string{}}

	rec := doRequest(t, rt, http.MethodPost, "/invalidate", `{"replica_id": "edge-a"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rt.invalidated)
}

func TestReplicasEndpointExposesLastError(t *testing.T) {
	rt := &fakeRouter{statuses: []router.ReplicaStatus{
		{ID: "edge-a", Health: models.HealthDown, Circuit: models.CircuitClosed, LastError: "connection refused"},
		{ID: "edge-b", Health: models.HealthHealthy, Circuit: models.CircuitClosed},
	}}

	rec := doRequest(t, rt, http.MethodGet, "/replicas", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var dtos []replicaStatusDto
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dtos))
	require.Len(t, dtos, 2)
	assert.Equal(t, "connection refused", dtos[0].LastError)
	assert.Empty(t, dtos[1].LastError)
}
