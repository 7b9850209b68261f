package recommend

import (
	"context"

	"github.com/Brownie44l1/leafcheck-api/internal/apperrors"
	"github.com/Brownie44l1/leafcheck-api/internal/logger"
	"github.com/Brownie44l1/leafcheck-api/internal/metrics"
)

// Service answers recommendation requests. A nil generator means the
// credential was never configured; a nil cache disables caching.
type Service struct {
	generator Generator
	cache     Cache
	logger    logger.Logger
}

func NewService(generator Generator, cache Cache, log logger.Logger) *Service {
	return &Service{
		generator: generator,
		cache:     cache,
		logger:    log.With(map[string]interface{}{"component": "recommend"}),
	}
}

// Configured reports whether a text generator is available.
func (s *Service) Configured() bool {
	return s.generator != nil
}

// Recommend returns care advice for disease. Healthy labels get the static
// tips; everything else is generated and returned verbatim.
func (s *Service) Recommend(ctx context.Context, disease string) (string, error) {
	if s.generator == nil {
		metrics.RecommendationsTotal.WithLabelValues(string(apperrors.ErrCodeRecommenderNotConfigured)).Inc()
		return "", apperrors.NewRecommenderNotConfiguredError()
	}
	if disease == "" {
		metrics.RecommendationsTotal.WithLabelValues(string(apperrors.ErrCodeInvalidInput)).Inc()
		return "", apperrors.NewInvalidInputError("Disease name is required")
	}

	if IsHealthy(disease) {
		metrics.RecommendationsTotal.WithLabelValues("static").Inc()
		return HealthyTips(), nil
	}

	key := cacheKey(s.generator.Model(), disease)
	if s.cache != nil {
		text, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("recommendation cache read failed", map[string]interface{}{
				"disease": disease,
				"error":   err.Error(),
			})
		} else if ok {
			metrics.RecommendationsTotal.WithLabelValues("cache_hit").Inc()
			return text, nil
		}
	}

	text, err := s.generator.Generate(ctx, BuildPrompt(disease))
	if err != nil {
		if apperrors.CodeOf(err) == "" {
			err = apperrors.NewUpstreamUnavailableError(err)
		}
		code := apperrors.CodeOf(err)
		metrics.RecommendationsTotal.WithLabelValues(string(code)).Inc()
		s.logger.Error("recommendation generation failed", map[string]interface{}{
			"disease":   disease,
			"errorCode": code,
			"retryable": apperrors.IsRetryable(err),
			"error":     err.Error(),
		})
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, text); err != nil {
			s.logger.Warn("recommendation cache write failed", map[string]interface{}{
				"disease": disease,
				"error":   err.Error(),
			})
		}
	}

	metrics.RecommendationsTotal.WithLabelValues("generated").Inc()
	return text, nil
}
