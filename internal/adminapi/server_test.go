package adminapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"permgate/internal/decision"
	"permgate/internal/humanqueue"
)

func newTestServer(t *testing.T) (*Server, *humanqueue.Queue) {
	t.Helper()
	q, err := humanqueue.New(t.TempDir())
	require.NoError(t, err)
	return New(q, []byte("test-secret")), q
}

func signToken(t *testing.T, secret []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "reviewer", "exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestListQueue_ReturnsPendingDecisions(t *testing.T) {
	srv, queue := newTestServer(t)
	_, err := queue.Enqueue(humanqueue.PendingDecision{Tool: "Bash", SessionID: "s1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/queue", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var pending []humanqueue.PendingDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
}

func TestReplyQueue_RejectsMissingBearerToken(t *testing.T) {
	srv, queue := newTestServer(t)
	id, err := queue.Enqueue(humanqueue.PendingDecision{Tool: "Bash", SessionID: "s1"})
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"verdict": "allow"})
	req := httptest.NewRequest(http.MethodPost, "/queue/"+id+"/reply", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReplyQueue_ValidTokenRecordsReply(t *testing.T) {
	srv, queue := newTestServer(t)
	id, err := queue.Enqueue(humanqueue.PendingDecision{Tool: "Bash", SessionID: "s1", ScopeCeiling: decision.ScopeUser})
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]interface{}{"verdict": "allow", "add_rule": true, "rule_scope": "role"})
	req := httptest.NewRequest(http.MethodPost, "/queue/"+id+"/reply", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signToken(t, []byte("test-secret")))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReplyQueue_InvalidVerdictRejected(t *testing.T) {
	srv, queue := newTestServer(t)
	id, err := queue.Enqueue(humanqueue.PendingDecision{Tool: "Bash", SessionID: "s1"})
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]string{"verdict": "maybe"})
	req := httptest.NewRequest(http.MethodPost, "/queue/"+id+"/reply", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+signToken(t, []byte("test-secret")))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetrics_ServedWithoutAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
