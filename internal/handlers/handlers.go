package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/Brownie44l1/leafcheck-api/internal/apperrors"
	"github.com/Brownie44l1/leafcheck-api/internal/logger"
	"github.com/Brownie44l1/leafcheck-api/internal/metrics"
	"github.com/Brownie44l1/leafcheck-api/internal/model"
	"github.com/Brownie44l1/leafcheck-api/internal/preprocess"
	"github.com/Brownie44l1/leafcheck-api/internal/upload"
)

const uploadField = "file"

// Predictor classifies a preprocessed tensor.
type Predictor interface {
	Predict(input []float32) (model.Prediction, error)
}

// Recommender produces care advice for a disease label.
type Recommender interface {
	Recommend(ctx context.Context, disease string) (string, error)
}

// configurable reports whether a recommender has its credential.
type configurable interface {
	Configured() bool
}

// Options are the request-independent settings of the handlers.
type Options struct {
	Preprocess     preprocess.Options
	MaxUploadBytes int64
}

// Handler serves the HTTP surface. Everything it holds is built once at
// startup and never mutated.
type Handler struct {
	predictor   Predictor
	recommender Recommender
	store       *upload.Store
	opts        Options
	logger      logger.Logger
	page        *template.Template

	recommendationsEnabled bool
}

func NewHandler(predictor Predictor, recommender Recommender, store *upload.Store, opts Options, log logger.Logger) *Handler {
	enabled := recommender != nil
	if c, ok := recommender.(configurable); ok {
		enabled = c.Configured()
	}
	return &Handler{
		predictor:              predictor,
		recommender:            recommender,
		store:                  store,
		opts:                   opts,
		logger:                 log.With(map[string]interface{}{"component": "handlers"}),
		page:                   indexTemplate,
		recommendationsEnabled: enabled,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Predict accepts a multipart upload in field "file" and returns the label
// with a 0-1 confidence rounded to four decimals.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pred, err := h.classifyUpload(w, r)
	if err != nil {
		h.recordFailure("predict", err)
		writeError(w, err)
		return
	}

	metrics.PredictionsTotal.WithLabelValues("predict", pred.Label).Inc()
	writeJSON(w, http.StatusOK, predictResponse{
		Prediction: pred.Label,
		Confidence: FractionConfidence(pred.Confidence),
	})
}

// Index renders the upload form and, on POST, the prediction with a
// percentage confidence.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	view := indexView{Recommendations: h.recommendationsEnabled}
	status := http.StatusOK

	switch r.Method {
	case http.MethodGet, http.MethodHead:
	case http.MethodPost:
		pred, err := h.classifyUpload(w, r)
		if err != nil {
			h.recordFailure("index", err)
			// Client mistakes are shown on the page itself.
			if code := apperrors.HTTPStatus(apperrors.CodeOf(err)); code >= http.StatusInternalServerError {
				status = code
			}
			view.Prediction = clientMessage(err)
			view.IsError = true
			break
		}
		metrics.PredictionsTotal.WithLabelValues("index", pred.Label).Inc()
		view.Prediction = pred.Label
		view.Confidence = PercentConfidence(pred.Confidence)
		view.HasConfidence = true
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.page.Execute(w, view); err != nil {
		h.logger.Error("render index failed", map[string]interface{}{"error": err.Error()})
	}
}

// GetRecommendation expects {"disease": "..."} and returns
// {"recommendation": "..."}.
func (h *Handler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.recommender == nil {
		writeError(w, apperrors.NewRecommenderNotConfiguredError())
		return
	}

	var req recommendationRequest
	body := http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, apperrors.NewInvalidInputError("Invalid JSON body"))
		return
	}

	text, err := h.recommender.Recommend(r.Context(), req.Disease)
	if err != nil {
		if apperrors.CodeOf(err) == "" {
			h.logger.Error("recommendation failed", map[string]interface{}{"error": err.Error()})
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: recommendationFailedMessage})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, recommendationResponse{Recommendation: text})
}

// classifyUpload runs the upload through staging, preprocessing and
// inference. The staged file is gone when it returns.
func (h *Handler) classifyUpload(w http.ResponseWriter, r *http.Request) (model.Prediction, error) {
	file, header, err := h.formFile(w, r)
	if err != nil {
		return model.Prediction{}, err
	}
	defer file.Close()

	h.logger.Debug("received upload", map[string]interface{}{
		"filename": header.Filename,
		"size":     header.Size,
	})

	var pred model.Prediction
	start := time.Now()
	err = h.store.Process(file, header.Filename, func(f *upload.File) error {
		tensor, err := preprocess.LoadFile(f.Path, h.opts.Preprocess)
		if err != nil {
			return err
		}
		pred, err = h.predictor.Predict(tensor.Data)
		if err != nil {
			return apperrors.NewInferenceError(err)
		}
		return nil
	})
	if err != nil {
		if apperrors.CodeOf(err) == "" {
			return model.Prediction{}, apperrors.NewUploadStagingError(err)
		}
		return model.Prediction{}, err
	}
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())

	h.logger.Info("prediction", map[string]interface{}{
		"label":      pred.Label,
		"confidence": pred.Confidence,
	})
	return pred, nil
}

func (h *Handler) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if h.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	}

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, apperrors.NewUploadTooLargeError(tooLarge.Limit)
		}
		return nil, nil, apperrors.NewNoFileUploadedError()
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		// A part with an empty filename is parsed as a plain value.
		if _, ok := r.MultipartForm.Value[uploadField]; ok {
			return nil, nil, apperrors.NewNoFileSelectedError()
		}
		return nil, nil, apperrors.NewNoFileUploadedError()
	}
	if header.Filename == "" {
		file.Close()
		return nil, nil, apperrors.NewNoFileSelectedError()
	}
	return file, header, nil
}

func (h *Handler) recordFailure(endpoint string, err error) {
	code := apperrors.CodeOf(err)
	metrics.PredictionErrorsTotal.WithLabelValues(endpoint, string(code)).Inc()

	fields := map[string]interface{}{"endpoint": endpoint, "errorCode": code, "error": err.Error()}
	if apperrors.HTTPStatus(code) >= http.StatusInternalServerError {
		h.logger.Error("prediction failed", fields)
		return
	}
	h.logger.Info("prediction rejected", fields)
}

// FractionConfidence is the JSON confidence format: a 0-1 fraction rounded to
// four decimals.
func FractionConfidence(score float32) float64 {
	return roundTo(float64(score), 4)
}

// PercentConfidence is the HTML confidence format: a percentage rounded to
// two decimals.
func PercentConfidence(score float32) float64 {
	return roundTo(float64(score)*100, 2)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
