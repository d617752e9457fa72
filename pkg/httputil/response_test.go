package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusOK, map[string]string{"org": "ACME"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ACME", body["org"])
}

func TestErrorEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		msg    string
	}{
		{"validation", func(w http.ResponseWriter) { WriteValidationError(w, "name is required") }, http.StatusBadRequest, "name is required"},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "missing bearer token") }, http.StatusUnauthorized, "missing bearer token"},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "insufficient scope") }, http.StatusForbidden, "insufficient scope"},
		{"not found", func(w http.ResponseWriter) { WriteNotFoundError(w, "organization not found") }, http.StatusNotFound, "organization not found"},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "organization already exists") }, http.StatusConflict, "organization already exists"},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w, errors.New("directory unavailable")) }, http.StatusInternalServerError, "directory unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.msg, body["error"])
		})
	}
}

func TestWriteNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteNoContent(rec)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}
