package service

import (
	"context"

	"github.com/clicloop/internal/logging"
	"github.com/clicloop/internal/models"
)

// LogUsageSink records generation usage to the structured log.
// Used when the ClickHouse ledger is disabled.
type LogUsageSink struct {
	logger *logging.Logger
}

// NewLogUsageSink creates a usage sink backed by logger
func NewLogUsageSink(logger *logging.Logger) *LogUsageSink {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &LogUsageSink{logger: logger.WithField("component", "usage")}
}

func (s *LogUsageSink) Record(_ context.Context, u *models.GenerationUsage) error {
	s.logger.WithFields(map[string]interface{}{
		"user_id":           u.UserID,
		"kind":              u.Kind,
		"model":             u.Model,
		"prompt_tokens":     u.PromptTokens,
		"completion_tokens": u.CompletionTokens,
		"total_tokens":      u.TotalTokens,
	}).Info("generation usage")
	return nil
}
