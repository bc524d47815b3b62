package api

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleRegisterRejectsMissingURL(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("POST", "/register", strings.NewReader(`{"name":"weather"}`))
	rec := httptest.NewRecorder()
	s.handleRegister(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestHandleRegisterRejectsNonPost(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/register", nil)
	rec := httptest.NewRecorder()
	s.handleRegister(rec, req)
	assert.Equal(t, 405, rec.Code)
}

func TestHandleRegisterUnreachableReturnsBadGateway(t *testing.T) {
	s, _ := newTestServer(t)
	// No real tool server is listening on this port; Attach's connect
	// phase will fail fast as a connect-class (unreachable) error.
	req := httptest.NewRequest("POST", "/register", strings.NewReader(`{"url":"http://127.0.0.1:1/sse"}`))
	rec := httptest.NewRecorder()
	s.handleRegister(rec, req)
	assert.Equal(t, 502, rec.Code)
}
