package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/leafcheck-api/internal/apperrors"
	"github.com/Brownie44l1/leafcheck-api/internal/logger"
	"github.com/Brownie44l1/leafcheck-api/internal/model"
	"github.com/Brownie44l1/leafcheck-api/internal/preprocess"
	"github.com/Brownie44l1/leafcheck-api/internal/recommend"
	"github.com/Brownie44l1/leafcheck-api/internal/upload"
)

type stubScorer struct {
	scores []float32
	err    error
	inputs int
}

func (s *stubScorer) Scores(input []float32) ([]float32, error) {
	s.inputs = len(input)
	return s.scores, s.err
}

type stubGenerator struct {
	text string
	err  error
}

func (g *stubGenerator) Generate(context.Context, string) (string, error) {
	return g.text, g.err
}

func (g *stubGenerator) Model() string { return "stub-model" }

type fixture struct {
	handler   *Handler
	scorer    *stubScorer
	uploadDir string
}

func newFixture(t *testing.T, gen recommend.Generator) *fixture {
	t.Helper()

	scorer := &stubScorer{scores: []float32{0.1, 0.7, 0.2}}
	classifier, err := model.NewClassifier(scorer, []string{"Early_blight", "healthy", "Late_blight"})
	require.NoError(t, err)

	dir := t.TempDir()
	log := logger.NewTestLogger(t)
	svc := recommend.NewService(gen, nil, log)

	h := NewHandler(classifier, svc, upload.NewStore(dir), Options{
		Preprocess:     preprocess.Options{Size: 4, Layout: preprocess.LayoutNHWC, Resample: "bilinear"},
		MaxUploadBytes: 1 << 20,
	}, log)
	return &fixture{handler: h, scorer: scorer, uploadDir: dir}
}

func (f *fixture) assertUploadsEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.uploadDir)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 40, G: 160, B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, target, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := httptest.NewRecorder()
	f.handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestPredict_ValidImage(t *testing.T) {
	f := newFixture(t, nil)
	rec := httptest.NewRecorder()
	f.handler.Predict(rec, multipartRequest(t, "/predict", "file", "leaf.png", pngBytes(t)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["prediction"])
	assert.InDelta(t, 0.7, body["confidence"], 1e-9)
	assert.Equal(t, 4*4*3, f.scorer.inputs)
	f.assertUploadsEmpty(t)
}

func TestPredict_Failures(t *testing.T) {
	tests := []struct {
		name    string
		request func(t *testing.T) *http.Request
		status  int
		message string
	}{
		{
			name: "no multipart body",
			request: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(""))
			},
			status:  http.StatusBadRequest,
			message: "No file uploaded",
		},
		{
			name: "wrong field",
			request: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/predict", "image", "leaf.png", pngBytes(t))
			},
			status:  http.StatusBadRequest,
			message: "No file uploaded",
		},
		{
			name: "empty filename",
			request: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/predict", "file", "", nil)
			},
			status:  http.StatusBadRequest,
			message: "No file selected",
		},
		{
			name: "not an image",
			request: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/predict", "file", "leaf.png", []byte("definitely not a png"))
			},
			status:  http.StatusBadRequest,
			message: "Invalid image file",
		},
		{
			name: "too large",
			request: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/predict", "file", "big.png", bytes.Repeat([]byte{0}, 2<<20))
			},
			status:  http.StatusBadRequest,
			message: "Upload too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := httptest.NewRecorder()
			f.handler.Predict(rec, tt.request(t))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeBody(t, rec)["error"])
			f.assertUploadsEmpty(t)
		})
	}
}

func TestPredict_InferenceFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.scorer.err = errors.New("session run: boom")

	rec := httptest.NewRecorder()
	f.handler.Predict(rec, multipartRequest(t, "/predict", "file", "leaf.png", pngBytes(t)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Prediction failed", decodeBody(t, rec)["error"])
	f.assertUploadsEmpty(t)
}

func TestPredict_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)
	rec := httptest.NewRecorder()
	f.handler.Predict(rec, httptest.NewRequest(http.MethodGet, "/predict", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestIndex_Get(t *testing.T) {
	f := newFixture(t, nil)
	rec := httptest.NewRecorder()
	f.handler.Index(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `name="file"`)
	assert.NotContains(t, rec.Body.String(), "Prediction:")
}

func TestIndex_UnknownPath(t *testing.T) {
	f := newFixture(t, nil)
	rec := httptest.NewRecorder()
	f.handler.Index(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIndex_PostRendersPercentConfidence(t *testing.T) {
	f := newFixture(t, nil)
	rec := httptest.NewRecorder()
	f.handler.Index(rec, multipartRequest(t, "/", "file", "leaf.png", pngBytes(t)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
	assert.Contains(t, rec.Body.String(), "Confidence: 70.00%")
	f.assertUploadsEmpty(t)
}

func TestIndex_PostWithoutFileRendersError(t *testing.T) {
	f := newFixture(t, nil)
	rec := httptest.NewRecorder()
	f.handler.Index(rec, multipartRequest(t, "/", "file", "", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No file selected")
	assert.NotContains(t, rec.Body.String(), "Confidence:")
}

func TestIndex_PostErrorStatus(t *testing.T) {
	t.Run("invalid image renders with 200", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := httptest.NewRecorder()
		f.handler.Index(rec, multipartRequest(t, "/", "file", "leaf.png", []byte("garbage")))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid image file")
		f.assertUploadsEmpty(t)
	})

	t.Run("inference failure keeps 500", func(t *testing.T) {
		f := newFixture(t, nil)
		f.scorer.err = errors.New("session run: boom")
		rec := httptest.NewRecorder()
		f.handler.Index(rec, multipartRequest(t, "/", "file", "leaf.png", pngBytes(t)))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "Prediction failed")
	})
}

func TestIndex_AdviceButtonFollowsCredential(t *testing.T) {
	const button = `id="help-btn"`

	f := newFixture(t, nil)
	rec := httptest.NewRecorder()
	f.handler.Index(rec, multipartRequest(t, "/", "file", "leaf.png", pngBytes(t)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), button)

	f = newFixture(t, &stubGenerator{text: "X"})
	rec = httptest.NewRecorder()
	f.handler.Index(rec, multipartRequest(t, "/", "file", "leaf.png", pngBytes(t)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), button)
}

func TestPredict_NonFiniteScore(t *testing.T) {
	f := newFixture(t, nil)
	f.scorer.scores = []float32{float32(math.NaN()), 0.9, 0.1}

	rec := httptest.NewRecorder()
	f.handler.Predict(rec, multipartRequest(t, "/predict", "file", "leaf.png", pngBytes(t)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Prediction failed", decodeBody(t, rec)["error"])
}

func recommendationRequestFor(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/get_recommendation", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestGetRecommendation(t *testing.T) {
	tests := []struct {
		name   string
		gen    recommend.Generator
		body   string
		status int
		field  string
		want   string
	}{
		{"generated text verbatim", &stubGenerator{text: "X"}, `{"disease":"Late_blight"}`, http.StatusOK, "recommendation", "X"},
		{"healthy is static", &stubGenerator{err: errors.New("must not be called")}, `{"disease":"healthy"}`, http.StatusOK, "recommendation", recommend.HealthyTips()},
		{"missing disease", &stubGenerator{text: "X"}, `{}`, http.StatusBadRequest, "error", "Disease name is required"},
		{"empty body", &stubGenerator{text: "X"}, ``, http.StatusBadRequest, "error", "Disease name is required"},
		{"invalid json", &stubGenerator{text: "X"}, `{"disease":`, http.StatusBadRequest, "error", "Invalid JSON body"},
		{"not configured", nil, `{"disease":"Late_blight"}`, http.StatusServiceUnavailable, "error", "Gemini API key not configured. Cannot get recommendations."},
		{"not configured healthy", nil, `{"disease":"healthy"}`, http.StatusServiceUnavailable, "error", "Gemini API key not configured. Cannot get recommendations."},
		{"upstream failure", &stubGenerator{err: apperrors.NewUpstreamUnavailableError(errors.New("connection refused"))}, `{"disease":"Late_blight"}`, http.StatusInternalServerError, "error", "Failed to get recommendation from AI model."},
		{"untyped generator error", &stubGenerator{err: errors.New("socket closed")}, `{"disease":"Late_blight"}`, http.StatusInternalServerError, "error", "Failed to get recommendation from AI model."},
		{"healthy with whitespace is generated", &stubGenerator{text: "X"}, `{"disease":" healthy "}`, http.StatusOK, "recommendation", "X"},
		{"upstream rejected", &stubGenerator{err: apperrors.NewUpstreamRejectedError(http.StatusForbidden, "bad key")}, `{"disease":"Late_blight"}`, http.StatusInternalServerError, "error", "Failed to get recommendation from AI model."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.gen)
			rec := httptest.NewRecorder()
			f.handler.GetRecommendation(rec, recommendationRequestFor(tt.body))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.want, decodeBody(t, rec)[tt.field])
		})
	}
}

type failingRecommender struct{ err error }

func (r failingRecommender) Recommend(context.Context, string) (string, error) {
	return "", r.err
}

func TestGetRecommendation_UntypedErrorUsesGenericMessage(t *testing.T) {
	classifier, err := model.NewClassifier(&stubScorer{scores: []float32{1}}, []string{"healthy"})
	require.NoError(t, err)
	h := NewHandler(classifier, failingRecommender{err: errors.New("socket closed")},
		upload.NewStore(t.TempDir()), Options{}, logger.NewTestLogger(t))

	rec := httptest.NewRecorder()
	h.GetRecommendation(rec, recommendationRequestFor(`{"disease":"Late_blight"}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to get recommendation from AI model.", decodeBody(t, rec)["error"])
}

func TestGetRecommendation_NilRecommender(t *testing.T) {
	classifier, err := model.NewClassifier(&stubScorer{scores: []float32{1}}, []string{"healthy"})
	require.NoError(t, err)
	h := NewHandler(classifier, nil, upload.NewStore(t.TempDir()), Options{}, logger.NewTestLogger(t))

	rec := httptest.NewRecorder()
	h.GetRecommendation(rec, recommendationRequestFor(`{"disease":"Late_blight"}`))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestConfidenceFormats(t *testing.T) {
	assert.Equal(t, 0.9123, FractionConfidence(0.912345))
	assert.Equal(t, 91.23, PercentConfidence(0.912345))
	assert.Equal(t, 0.7, FractionConfidence(0.7))
	assert.Equal(t, 70.0, PercentConfidence(0.7))
	assert.Equal(t, 1.0, FractionConfidence(1))
	assert.Equal(t, 0.0, PercentConfidence(0))
}
