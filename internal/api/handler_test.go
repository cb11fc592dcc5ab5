package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dpm/internal/audit"
	"dpm/internal/db"
	"dpm/internal/domain"
	"dpm/internal/provision"
)

// stubOps is a minimal platform fake: user creates succeed, everything
// else is untouched by these tests.
type stubOps struct {
	userCreates int
}

func (s *stubOps) FindUserByEmail(context.Context, string) (*domain.User, error) { return nil, nil }

func (s *stubOps) EnsureUser(_ context.Context, email, displayName string) (*domain.EnsureUserResult, error) {
	s.userCreates++
	return &domain.EnsureUserResult{
		User:       domain.User{ID: "u-1", UserName: email, DisplayName: displayName},
		StatusCode: 201,
		Body:       map[string]interface{}{"id": "u-1"},
	}, nil
}

func (s *stubOps) UpdateUser(context.Context, string, []domain.PatchOperation) (int, error) {
	return 200, nil
}

func (s *stubOps) DeleteUser(context.Context, string) error { return nil }

func (s *stubOps) FindGroupByName(context.Context, string) (*domain.Group, error) { return nil, nil }

func (s *stubOps) CreateGroupWithMembers(context.Context, string, []string) (*domain.GroupCreation, error) {
	return &domain.GroupCreation{Group: domain.Group{ID: "g-1"}, StatusCode: 201}, nil
}

func (s *stubOps) AddMembersToGroup(context.Context, string, []string) (*domain.MemberAddition, error) {
	return &domain.MemberAddition{StatusCode: 200}, nil
}

func (s *stubOps) RemoveMembersFromGroup(context.Context, string, []string) (*domain.RemovalResult, error) {
	return &domain.RemovalResult{Status: domain.RemovalAll}, nil
}

func (s *stubOps) LookupPolicyID(context.Context, string) (string, error) { return "pol-1", nil }

func (s *stubOps) CreateAllPurposeCluster(context.Context, domain.ClusterSpec) (string, error) {
	return "c-1", nil
}

func (s *stubOps) CreateSQLWarehouse(context.Context, domain.WarehouseSpec) (string, error) {
	return "w-1", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer wires a real runner and SQLite-backed trail behind the router.
func newTestServer(t *testing.T) (*httptest.Server, *stubOps) {
	t.Helper()

	logger := discardLogger()
	trail := audit.NewTrail(audit.NewSQLStore(db.OpenTestSQLite(t)), nil, logger)
	ops := &stubOps{}
	runner := provision.NewRunner(provision.NewOrchestrator(ops, trail, logger), logger)
	h := NewHandler(runner, trail, "fallback@example.com", logger)

	srv := httptest.NewServer(NewRouter(h, RouterConfig{
		AllowedOrigins: []string{"*"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		Logger:         logger,
	}))
	t.Cleanup(srv.Close)
	return srv, ops
}

func TestProvision_RunsBatch(t *testing.T) {
	srv, ops := newTestServer(t)

	body := `{"admin": "ops@example.com", "rows": [
		{"action": "CREATE_USER", "user_email": "a@example.com", "first_name": "Ada", "last_name": "Lovelace"},
		{"action": "CREATE_USER"}
	]}`
	resp, err := http.Post(srv.URL+"/api/v1/provision", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report provision.RunReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Failed)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "a@example.com", report.Results[0].Identifier)
	assert.False(t, report.Results[0].Failed())
	assert.True(t, report.Results[1].Failed())
	assert.Equal(t, 1, ops.userCreates)
}

func TestProvision_EmptyRowsRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/provision", "application/json",
		bytes.NewBufferString(`{"admin": "ops@example.com", "rows": []}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProvision_InvalidJSONRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/provision", "application/json",
		bytes.NewBufferString(`{not json`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProvision_DefaultAdminApplied(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"rows": [{"action": "CREATE_USER", "user_email": "a@example.com"}]}`
	resp, err := http.Post(srv.URL+"/api/v1/provision", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The run's audit record carries the configured default admin.
	auditResp, err := http.Get(srv.URL + "/api/v1/audit?admin=fallback@example.com")
	require.NoError(t, err)
	defer auditResp.Body.Close()
	require.Equal(t, http.StatusOK, auditResp.StatusCode)

	var out struct {
		Count   int                      `json:"count"`
		Records []map[string]interface{} `json:"records"`
	}
	require.NoError(t, json.NewDecoder(auditResp.Body).Decode(&out))
	assert.Equal(t, 1, out.Count)
}

func TestListAudit_FiltersAndLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"admin": "ops@example.com", "rows": [
		{"action": "CREATE_USER", "user_email": "a@example.com"},
		{"action": "CREATE_USER", "user_email": "b@example.com"},
		{"action": "CREATE_USER"}
	]}`
	resp, err := http.Post(srv.URL+"/api/v1/provision", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	auditResp, err := http.Get(srv.URL + "/api/v1/audit?status=SUCCESS&limit=1")
	require.NoError(t, err)
	defer auditResp.Body.Close()
	require.Equal(t, http.StatusOK, auditResp.StatusCode)

	var out struct {
		Count   int `json:"count"`
		Records []struct {
			Status string `json:"status"`
			Action string `json:"action"`
		} `json:"records"`
	}
	require.NoError(t, json.NewDecoder(auditResp.Body).Decode(&out))
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "SUCCESS", out.Records[0].Status)
	assert.Equal(t, "CREATE_USER", out.Records[0].Action)
}

func TestListAudit_BadLimitRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/audit?limit=zero")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestHTTPStatusFromDomainError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound("gone"), http.StatusNotFound},
		{domain.ErrValidation("bad"), http.StatusBadRequest},
		{domain.ErrConflict("dupe"), http.StatusConflict},
		{&domain.RemoteAPIError{StatusCode: 500}, http.StatusBadGateway},
		{&domain.TransportError{Attempts: 2}, http.StatusGatewayTimeout},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpStatusFromDomainError(tt.err), "err %v", tt.err)
	}
}
