package app

import (
	"context"

	"go.uber.org/zap"

	"policymitr/internal/model"
	"policymitr/internal/repository"
)

const adminActivityLimit = 50

type Analytics struct {
	TotalUsers    int64            `json:"total_users"`
	TotalPolicies int64            `json:"total_policies"`
	TotalActions  int64            `json:"total_actions"`
	Categories    map[string]int64 `json:"categories"`
	Languages     map[string]int64 `json:"languages"`
}

// AdminService serves the platform wide views. Every call checks that the
// caller holds the admin role.
type AdminService struct {
	users    *repository.UserRepository
	policies *repository.PolicyRepository
	activity *repository.ActivityRepository
	logger   *zap.Logger
}

func NewAdminService(users *repository.UserRepository, policies *repository.PolicyRepository, activity *repository.ActivityRepository, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{users: users, policies: policies, activity: activity, logger: logger}
}

func (s *AdminService) Analytics(ctx context.Context, callerID uint) (*Analytics, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return nil, err
	}
	var (
		out Analytics
		err error
	)
	if out.TotalUsers, err = s.users.Count(ctx); err != nil {
		return nil, err
	}
	if out.TotalPolicies, err = s.policies.Count(ctx); err != nil {
		return nil, err
	}
	if out.TotalActions, err = s.activity.Count(ctx); err != nil {
		return nil, err
	}
	if out.Categories, err = s.policies.CountBy(ctx, "category"); err != nil {
		return nil, err
	}
	if out.Languages, err = s.policies.CountBy(ctx, "language"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *AdminService) Users(ctx context.Context, callerID uint) ([]model.User, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return nil, err
	}
	return s.users.ListAll(ctx)
}

// Activity returns the newest entries of the activity feed.
func (s *AdminService) Activity(ctx context.Context, callerID uint) ([]model.ActivityLog, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return nil, err
	}
	return s.activity.ListRecent(ctx, adminActivityLimit)
}

// Promote grants the admin role to the named user.
func (s *AdminService) Promote(ctx context.Context, username string) error {
	if username == "" {
		return ErrInvalidInput
	}
	ok, err := s.users.SetRole(ctx, username, model.RoleAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	s.logger.Info("user promoted to admin", zap.String("username", username))
	return nil
}

func (s *AdminService) requireAdmin(ctx context.Context, callerID uint) error {
	if callerID == 0 {
		return ErrInvalidInput
	}
	user, err := s.users.GetByID(ctx, callerID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if user.Role != model.RoleAdmin {
		s.logger.Warn("admin access denied", zap.Uint("user_id", callerID))
		return ErrForbidden
	}
	return nil
}
