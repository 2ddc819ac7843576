package service

import (
	"context"
	"strings"
	"time"

	"health-screening/models"
	"health-screening/storage"
)

// SubmissionGetter loads one submission
type SubmissionGetter interface {
	Get(ctx context.Context, id string) (*models.Submission, error)
}

// PhotoService issues time-limited photo URLs
type PhotoService struct {
	store     storage.ObjectStore
	subs      SubmissionGetter
	adminTTL  time.Duration
	publicTTL time.Duration
	now       func() time.Time
}

// NewPhotoService creates a photo service
func NewPhotoService(store storage.ObjectStore, subs SubmissionGetter, adminTTL, publicTTL time.Duration) *PhotoService {
	return &PhotoService{
		store:     store,
		subs:      subs,
		adminTTL:  adminTTL,
		publicTTL: publicTTL,
		now:       time.Now,
	}
}

// AdminURL signs a stored photo key for dashboard viewing
func (s *PhotoService) AdminURL(ctx context.Context, photoPath string) (*models.SignedURLResponse, error) {
	if !storage.IsSubmissionKey(photoPath) {
		return nil, ErrInvalidPhotoPath
	}
	return s.sign(ctx, photoPath, s.adminTTL)
}

// ParticipantURL signs the photo of a submission. A non-empty verification
// must match the last four digits of the stored phone.
func (s *PhotoService) ParticipantURL(ctx context.Context, submissionID, verification string) (*models.SignedURLResponse, error) {
	sub, err := s.subs.Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if verification = strings.TrimSpace(verification); verification != "" {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, sub.Phone)
		if len(digits) < 4 || digits[len(digits)-4:] != verification {
			return nil, ErrVerificationFailed
		}
	}
	return s.sign(ctx, sub.PhotoKey, s.publicTTL)
}

func (s *PhotoService) sign(ctx context.Context, key string, ttl time.Duration) (*models.SignedURLResponse, error) {
	url, err := s.store.PresignGet(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return &models.SignedURLResponse{URL: url, ExpiresAt: s.now().UTC().Add(ttl)}, nil
}
