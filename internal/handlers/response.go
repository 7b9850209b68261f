package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Brownie44l1/leafcheck-api/internal/apperrors"
)

const recommendationFailedMessage = "Failed to get recommendation from AI model."

type predictResponse struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

type recommendationRequest struct {
	Disease string `json:"disease"`
}

type recommendationResponse struct {
	Recommendation string `json:"recommendation"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(apperrors.CodeOf(err))
	writeJSON(w, status, errorResponse{Error: clientMessage(err)})
}

// clientMessage is the text shown to callers. Upstream details stay in the
// server log.
func clientMessage(err error) string {
	var stdErr *apperrors.StandardError
	if !errors.As(err, &stdErr) {
		return http.StatusText(http.StatusInternalServerError)
	}
	switch stdErr.Code {
	case apperrors.ErrCodeUpstreamRejected,
		apperrors.ErrCodeUpstreamUnavailable,
		apperrors.ErrCodeUpstreamTimeout,
		apperrors.ErrCodeUpstreamBadResponse:
		return recommendationFailedMessage
	}
	return stdErr.Message
}
