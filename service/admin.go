package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/apex/log"
	"github.com/samber/lo"

	"health-screening/export"
	"health-screening/models"
	"health-screening/notify"
	"health-screening/validation"
)

// SubmissionRepository is the read/update side of the submission store
type SubmissionRepository interface {
	Get(ctx context.Context, id string) (*models.Submission, error)
	Query(ctx context.Context, f models.SubmissionFilter) (*models.SubmissionPage, error)
	ListAll(ctx context.Context, f models.SubmissionFilter, limit int) ([]models.Submission, error)
	UpdateFollowUp(ctx context.Context, id string, u models.FollowUpUpdate) error
	Stats(ctx context.Context, churchID string) (*models.SubmissionStats, error)
}

// AdminService backs the admin dashboard
type AdminService struct {
	submissions SubmissionRepository
	messenger   Messenger
	exportLimit int
}

// NewAdminService creates an admin service. messenger may be nil.
func NewAdminService(submissions SubmissionRepository, messenger Messenger, exportLimit int) *AdminService {
	return &AdminService{
		submissions: submissions,
		messenger:   messenger,
		exportLimit: exportLimit,
	}
}

// Query returns one filtered page
func (s *AdminService) Query(ctx context.Context, f models.SubmissionFilter) (*models.SubmissionPage, error) {
	if errs := ValidateFilter(f); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return s.submissions.Query(ctx, f)
}

// Get returns one submission
func (s *AdminService) Get(ctx context.Context, id string) (*models.Submission, error) {
	return s.submissions.Get(ctx, id)
}

// UpdateFollowUp validates and applies a sparse follow-up update, returning
// the updated record
func (s *AdminService) UpdateFollowUp(ctx context.Context, id string, u models.FollowUpUpdate) (*models.Submission, error) {
	if errs := validation.ValidateFollowUp(u); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	if err := s.submissions.UpdateFollowUp(ctx, id, u); err != nil {
		return nil, err
	}
	return s.submissions.Get(ctx, id)
}

// Export writes every submission matching the filters to w
func (s *AdminService) Export(ctx context.Context, req models.ExportRequest, w io.Writer) error {
	if !strings.EqualFold(req.Format, export.FormatCSV) {
		return ErrUnsupportedFormat
	}
	if errs := ValidateFilter(req.Filters); len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}

	subs, err := s.submissions.ListAll(ctx, req.Filters, s.exportLimit)
	if err != nil {
		return fmt.Errorf("failed to load submissions for export: %w", err)
	}
	log.Infof("Exporting %d submissions", len(subs))
	return export.WriteCSV(w, subs)
}

// Stats aggregates counts, optionally for one church
func (s *AdminService) Stats(ctx context.Context, churchID string) (*models.SubmissionStats, error) {
	return s.submissions.Stats(ctx, churchID)
}

// Notify sends a message to the participant of a submission
func (s *AdminService) Notify(ctx context.Context, id string, req models.NotifyRequest) error {
	if s.messenger == nil {
		return notify.ErrChannelDisabled
	}
	sub, err := s.submissions.Get(ctx, id)
	if err != nil {
		return err
	}
	subject := req.Subject
	if subject == "" {
		subject = "Your health screening follow-up"
	}
	to := notify.Recipient{Name: sub.FullName(), Phone: sub.Phone, Email: sub.Email}
	return s.messenger.Send(ctx, req.Channel, to, subject, req.Message)
}

// ValidateFilter rejects unknown enum values and inverted date ranges
func ValidateFilter(f models.SubmissionFilter) []models.FieldError {
	var errs []models.FieldError
	if bad := lo.Without(f.RiskLevels, models.RiskLevels...); len(bad) > 0 {
		errs = append(errs, models.FieldError{Field: "riskLevels", Message: "unknown risk level: " + strings.Join(bad, ", ")})
	}
	if bad := lo.Without(f.FollowUpStatuses, models.FollowUpStatuses...); len(bad) > 0 {
		errs = append(errs, models.FieldError{Field: "followUpStatuses", Message: "unknown follow-up status: " + strings.Join(bad, ", ")})
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		errs = append(errs, models.FieldError{Field: "endDate", Message: "must not be before startDate"})
	}
	return errs
}
