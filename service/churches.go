package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"health-screening/models"
	"health-screening/qrcode"
	"health-screening/validation"
)

// ChurchRepository is the outreach location store
type ChurchRepository interface {
	List(ctx context.Context, includeArchived bool) ([]models.Church, error)
	Get(ctx context.Context, id string) (*models.Church, error)
	Create(ctx context.Context, c *models.Church) error
	Update(ctx context.Context, c *models.Church) error
	Delete(ctx context.Context, id string) (*models.ChurchDeleteResult, error)
}

// ChurchService manages outreach locations and their form QR codes
type ChurchService struct {
	churches ChurchRepository
	formURL  string
	now      func() time.Time
}

// NewChurchService creates a church service. formURL is the public form
// address the QR codes point at.
func NewChurchService(churches ChurchRepository, formURL string) *ChurchService {
	return &ChurchService{churches: churches, formURL: formURL, now: time.Now}
}

func (s *ChurchService) List(ctx context.Context, includeArchived bool) ([]models.Church, error) {
	return s.churches.List(ctx, includeArchived)
}

func (s *ChurchService) Get(ctx context.Context, id string) (*models.Church, error) {
	return s.churches.Get(ctx, id)
}

// Create validates and stores a new location
func (s *ChurchService) Create(ctx context.Context, req models.ChurchRequest) (*models.Church, error) {
	req = trimChurch(req)
	if errs := validation.ValidateChurch(req); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	now := s.now().UTC()
	c := &models.Church{
		ID:        uuid.NewString(),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyChurch(c, req)
	if err := s.churches.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update replaces the editable fields of a location
func (s *ChurchService) Update(ctx context.Context, id string, req models.ChurchRequest) (*models.Church, error) {
	req = trimChurch(req)
	if errs := validation.ValidateChurch(req); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	c, err := s.churches.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyChurch(c, req)
	if err := s.churches.Update(ctx, c); err != nil {
		return nil, err
	}
	return s.churches.Get(ctx, id)
}

// Delete removes an unused location or archives one with history
func (s *ChurchService) Delete(ctx context.Context, id string) (*models.ChurchDeleteResult, error) {
	return s.churches.Delete(ctx, id)
}

// QRCode renders the PNG QR code linking to the form for a location
func (s *ChurchService) QRCode(ctx context.Context, id string, size int) ([]byte, error) {
	c, err := s.churches.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	link, err := qrcode.FormURL(s.formURL, c.ID)
	if err != nil {
		return nil, err
	}
	return qrcode.PNG(link, size)
}

func trimChurch(req models.ChurchRequest) models.ChurchRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	req.ContactPerson = strings.TrimSpace(req.ContactPerson)
	req.ContactEmail = strings.ToLower(strings.TrimSpace(req.ContactEmail))
	req.ContactPhone = strings.TrimSpace(req.ContactPhone)
	return req
}

func applyChurch(c *models.Church, req models.ChurchRequest) {
	c.Name = req.Name
	c.Address = req.Address
	c.ContactPerson = req.ContactPerson
	c.ContactEmail = req.ContactEmail
	c.ContactPhone = req.ContactPhone
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
}
