package app

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"policymitr/internal/model"
	"policymitr/internal/repository"
)

const (
	ActionUpload  = "upload"
	ActionChat    = "chat"
	ActionCompare = "compare"

	activityDetailRunes = 100
)

// activityRecorder writes the admin activity feed. Writes are best effort:
// a failure is logged and never reaches the caller.
type activityRecorder struct {
	activity *repository.ActivityRepository
	logger   *zap.Logger
}

func (r activityRecorder) recordActivity(ctx context.Context, userID uint, action, policyID, details string) {
	if r.activity == nil {
		return
	}
	entry := &model.ActivityLog{
		ID:       uuid.NewString(),
		UserID:   userID,
		Action:   action,
		PolicyID: policyID,
		Details:  truncate(details, activityDetailRunes),
	}
	if err := r.activity.Create(ctx, entry); err != nil && r.logger != nil {
		r.logger.Warn("record activity failed", zap.String("action", action), zap.Error(err))
	}
}
