package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	apperrors "ledgersync/internal/errors"
	"ledgersync/internal/logger"
	"ledgersync/internal/models"
)

// journalService keeps the local history of sync runs.
type journalService struct {
	db *gorm.DB
}

// NewJournalService creates a new JournalServicer.
func NewJournalService(db *gorm.DB) JournalServicer {
	return &journalService{db: db}
}

// Record stores a finished sync run. Errors are logged but never propagate;
// losing a journal row must not fail the sync it describes.
func (s *journalService) Record(run *models.SyncRun) {
	if err := s.db.Create(run).Error; err != nil {
		logger.Get().Errorw("failed to record sync run",
			"error", err,
			"owner_id", run.OwnerID,
			"status", run.Status,
		)
	}
}

// Last returns ownerID's most recent run, or nil if there has been none.
func (s *journalService) Last(ctx context.Context, ownerID string) (*models.SyncRun, error) {
	var run models.SyncRun
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("finished_at DESC").
		Order("started_at DESC").
		Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageFailure, err)
	}
	return &run, nil
}

// Recent returns up to limit of ownerID's runs, newest first.
func (s *journalService) Recent(ctx context.Context, ownerID string, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}
	var runs []models.SyncRun
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("finished_at DESC").
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageFailure, err)
	}
	return runs, nil
}
