package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pharmaops/doseflow/internal/domain/control"
	"github.com/pharmaops/doseflow/internal/domain/medication"
)

// ReportService serves the read-only operational queries: stock alerts and
// interval-ledger overviews.
type ReportService struct {
	medRepo     medication.Repository
	controlRepo control.Repository
	log         *zap.Logger

	now func() time.Time
}

func NewReportService(medRepo medication.Repository, controlRepo control.Repository, log *zap.Logger) *ReportService {
	return &ReportService{medRepo: medRepo, controlRepo: controlRepo, log: log, now: time.Now}
}

func (s *ReportService) LowStock(ctx context.Context) ([]*medication.Medication, error) {
	return s.medRepo.ListLowStock(ctx)
}

func (s *ReportService) NearExpiry(ctx context.Context) ([]*medication.Medication, error) {
	return s.medRepo.ListNearExpiry(ctx)
}

// UpcomingReleases lists active controls whose next-allowed date falls
// within the coming days, for renewal planning.
func (s *ReportService) UpcomingReleases(ctx context.Context, days int) ([]*control.DispensationControl, error) {
	if days < 1 {
		days = 7
	}
	from := s.now()
	return s.controlRepo.ListUpcomingReleases(ctx, from, from.AddDate(0, 0, days))
}

// RecentEarlyReleases lists interval overrides authorized in the last days,
// newest first. The override trail is the primary compliance report.
func (s *ReportService) RecentEarlyReleases(ctx context.Context, days, limit int) ([]*control.EarlyReleaseLog, error) {
	if days < 1 {
		days = 30
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	since := s.now().AddDate(0, 0, -days)
	return s.controlRepo.ListRecentEarlyReleases(ctx, since, limit)
}
