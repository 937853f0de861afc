package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vssbroker/internal/shared/logger"
	"vssbroker/internal/vss/authz"
	"vssbroker/internal/vss/transport/wsserver"
)

type nopProcessor struct{}

func (nopProcessor) ProcessQuery(rawRequest []byte, ch *authz.Channel) []byte { return rawRequest }

type nopCleaner struct{}

func (nopCleaner) UnsubscribeAll(uint64) {}

func TestHealthEndpoint(t *testing.T) {
	ws := wsserver.New(nopProcessor{}, nopCleaner{}, authz.NewRegistry(), logger.NewLogger())
	router := NewRouter(ws, nil, "test", logger.NewLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.GetEngine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestCORS_RejectsUnlistedOriginByOmittingHeader(t *testing.T) {
	ws := wsserver.New(nopProcessor{}, nopCleaner{}, authz.NewRegistry(), logger.NewLogger())
	router := NewRouter(ws, []string{"https://dashboard.example.com"}, "test", logger.NewLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	router.GetEngine().ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_AllowsListedOrigin(t *testing.T) {
	ws := wsserver.New(nopProcessor{}, nopCleaner{}, authz.NewRegistry(), logger.NewLogger())
	router := NewRouter(ws, []string{"https://dashboard.example.com"}, "test", logger.NewLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec := httptest.NewRecorder()
	router.GetEngine().ServeHTTP(rec, req)

	assert.Equal(t, "https://dashboard.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
