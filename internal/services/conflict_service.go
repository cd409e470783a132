package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
)

// ConflictService lists and settles logged conflicts
type ConflictService struct {
	repo   *repository.ConflictRepository
	logger *logrus.Entry
	now    func() time.Time
}

// NewConflictService creates a conflict service
func NewConflictService(repo *repository.ConflictRepository, logger *logrus.Entry) *ConflictService {
	return &ConflictService{
		repo:   repo,
		logger: logger.WithField("component", "conflicts"),
		now:    time.Now,
	}
}

// List returns the tenant's conflicts
func (s *ConflictService) List(ctx context.Context, tenantID string, filter repository.ConflictFilter) ([]models.Conflict, int64, error) {
	return s.repo.List(ctx, tenantID, filter)
}

// Get returns one conflict
func (s *ConflictService) Get(ctx context.Context, tenantID string, id uuid.UUID) (*models.Conflict, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

// Resolve marks a pending conflict RESOLVED
func (s *ConflictService) Resolve(ctx context.Context, tenantID string, id uuid.UUID, resolvedBy, note string) (*models.Conflict, error) {
	return s.transition(ctx, tenantID, id, func(c *models.Conflict) error {
		return c.Resolve(resolvedBy, note, s.now())
	})
}

// Ignore marks a pending conflict IGNORED
func (s *ConflictService) Ignore(ctx context.Context, tenantID string, id uuid.UUID, resolvedBy, note string) (*models.Conflict, error) {
	return s.transition(ctx, tenantID, id, func(c *models.Conflict) error {
		return c.Ignore(resolvedBy, note, s.now())
	})
}

func (s *ConflictService) transition(ctx context.Context, tenantID string, id uuid.UUID, apply func(*models.Conflict) error) (*models.Conflict, error) {
	conflict, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := apply(conflict); err != nil {
		return nil, err
	}
	if err := s.repo.SaveResolution(ctx, conflict); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"tenantId":   tenantID,
		"conflictId": conflict.ID,
		"status":     conflict.Status,
		"resolvedBy": conflict.ResolvedBy,
	}).Info("Conflict settled")
	return conflict, nil
}
