package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Brownie44l1/leafcheck-api/internal/logger"
)

func TestEnableCORS_Preflight(t *testing.T) {
	called := false
	h := EnableCORS(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodOptions, "/predict", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.False(t, called)
}

func TestEnableCORS_PassesThrough(t *testing.T) {
	h := EnableCORS(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/predict", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestInstrument_KeepsStatus(t *testing.T) {
	h := Instrument("/predict", logger.NewTestLogger(t), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/predict", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
