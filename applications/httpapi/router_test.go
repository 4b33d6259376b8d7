package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/camdencbrown/relay/infrastructure/logging"
	"github.com/camdencbrown/relay/internal/relay/blobwriter"
	"github.com/camdencbrown/relay/internal/relay/connectors"
	"github.com/camdencbrown/relay/internal/relay/metadata"
	"github.com/camdencbrown/relay/internal/relay/ontology"
	"github.com/camdencbrown/relay/internal/relay/pipeline"
	"github.com/camdencbrown/relay/internal/relay/query"
	"github.com/camdencbrown/relay/internal/relay/scheduler"
	"github.com/camdencbrown/relay/internal/relay/semantic"
	"github.com/camdencbrown/relay/internal/relay/service"
	"github.com/camdencbrown/relay/internal/relay/store"
)

// fakeCipher is a no-op stand-in for infrastructure/crypto.Cipher in tests
// that don't exercise connection credentials.
type fakeCipher struct{}

func (fakeCipher) EncryptDict(creds map[string]string) ([]byte, error) { return []byte("{}"), nil }
func (fakeCipher) DecryptDict(ciphertext []byte) (map[string]string, error) {
	return map[string]string{}, nil
}

func newTestService(t *testing.T, requireAuth bool) *service.Service {
	t.Helper()
	st := store.NewMemory()
	logger := logging.New("test", "error", "json")
	registry := connectors.NewRegistry(st, fakeCipher{})
	writer := blobwriter.NewWriter(blobwriter.NewLocalBackend(t.TempDir()))
	metadataGen := metadata.New(st)
	pipelines := pipeline.New(st, registry, writer, metadataGen, logger)
	queryEngine := query.New(st)
	pipelines.Queries = queryEngine
	semanticEngine := semantic.New(st, queryEngine, "")
	ontologyMgr := ontology.New(st, "", !requireAuth)
	sched := scheduler.New(st, pipelines, logger)

	return service.New(st, registry, writer, pipelines, metadataGen, queryEngine, ontologyMgr, semanticEngine, sched, fakeCipher{}, logger,
		service.WithRequireAuth(requireAuth),
	)
}

func mintKey(t *testing.T, svc *service.Service, role store.Role) string {
	t.Helper()
	resp, err := svc.CreateAPIKey(context.Background(), store.RoleAdmin, service.CreateAPIKeyRequest{Name: string(role) + "-key", Role: role})
	require.NoError(t, err)
	return resp["secret"].(string)
}

func TestCapabilitiesAndHealthAreUnauthenticated(t *testing.T) {
	svc := newTestService(t, true)
	router := NewRouter(svc, nil, true, nil, nil)

	for _, path := range []string{"/api/v1/capabilities", "/api/v1/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

// TestRBACEnforcement checks that with auth required, a reader
// key is rejected from writer/admin operations, a writer key may create but
// not delete pipelines, and an admin key may do both.
func TestRBACEnforcement(t *testing.T) {
	svc := newTestService(t, true)
	router := NewRouter(svc, nil, true, nil, nil)

	readerKey := mintKey(t, svc, store.RoleReader)
	writerKey := mintKey(t, svc, store.RoleWriter)
	adminKey := mintKey(t, svc, store.RoleAdmin)

	createBody := `{"name":"Demo Orders","source":{"type":"synthetic","schema":{"id":"integer:1:1000"}},"destination":{"bucket":"demo"}}`

	post := func(key, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("X-Relay-Api-Key", key)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := post(readerKey, "/api/v1/pipeline/create", createBody)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = post(writerKey, "/api/v1/pipeline/create", createBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	pipelineObj := created["pipeline"].(map[string]interface{})
	pipelineID := pipelineObj["id"].(string)

	deleteReq := httptest.NewRequest(http.MethodDelete, "/api/v1/pipeline/"+pipelineID, nil)
	deleteReq.Header.Set("X-Relay-Api-Key", writerKey)
	deleteRec := httptest.NewRecorder()
	router.ServeHTTP(deleteRec, deleteReq)
	require.Equal(t, http.StatusForbidden, deleteRec.Code)

	deleteReq = httptest.NewRequest(http.MethodDelete, "/api/v1/pipeline/"+pipelineID, nil)
	deleteReq.Header.Set("X-Relay-Api-Key", adminKey)
	deleteRec = httptest.NewRecorder()
	router.ServeHTTP(deleteRec, deleteReq)
	require.Equal(t, http.StatusOK, deleteRec.Code)
}

func TestMissingAuthHeaderIsUnauthorized(t *testing.T) {
	svc := newTestService(t, true)
	router := NewRouter(svc, nil, true, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pipeline/list", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
