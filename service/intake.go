package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"health-screening/analysis"
	"health-screening/database"
	"health-screening/fingerprint"
	"health-screening/metrics"
	"health-screening/models"
	"health-screening/notify"
	"health-screening/rabbitmq"
	"health-screening/risk"
	"health-screening/storage"
	"health-screening/upload"
	"health-screening/validation"
)

const compensateTimeout = 10 * time.Second

// Analyzer estimates BMI, age and gender from a photo. It never fails; an
// unsuccessful Result means analysis is unavailable.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte) analysis.Result
}

// SubmissionWriter persists new submissions
type SubmissionWriter interface {
	Create(ctx context.Context, sub *models.Submission) error
}

// ChurchDirectory resolves submission locations and maintains their counters
type ChurchDirectory interface {
	Get(ctx context.Context, id string) (*models.Church, error)
	IncrementSubmissionCount(ctx context.Context, id string) error
}

// EventPublisher publishes domain events to the message bus
type EventPublisher interface {
	PublishEvent(ctx context.Context, event models.SubmissionEvent) error
}

// Broadcaster pushes events to connected admin dashboards
type Broadcaster interface {
	BroadcastSubmission(event models.SubmissionEvent)
}

// Messenger sends participant notifications
type Messenger interface {
	Send(ctx context.Context, channel string, to notify.Recipient, subject, message string) error
	SMSEnabled() bool
}

// IntakeDeps wires IntakeService. Events, Live and Messenger are optional.
type IntakeDeps struct {
	Store       storage.ObjectStore
	Analyzer    Analyzer
	Submissions SubmissionWriter
	Churches    ChurchDirectory
	Events      EventPublisher
	Live        Broadcaster
	Messenger   Messenger

	Policy           upload.Policy
	SendConfirmation bool
}

// IntakeRequest is one public form post
type IntakeRequest struct {
	Form       map[string]string
	FilePath   string
	FileName   string
	FileMIME   string
	Headers    http.Header
	RemoteAddr string
	ClientInfo models.ClientInfo
}

// IntakeService turns a form post into a stored, scored submission
type IntakeService struct {
	deps  IntakeDeps
	now   func() time.Time
	newID func() string
}

// NewIntakeService creates the intake pipeline
func NewIntakeService(deps IntakeDeps) *IntakeService {
	return &IntakeService{
		deps:  deps,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Submit validates, stores, analyzes, scores and persists one submission,
// returning its id. A photo written to storage is deleted again whenever a
// later required step fails.
func (s *IntakeService) Submit(ctx context.Context, req IntakeRequest) (string, *IntakeError) {
	input, fieldErrs := validation.ValidateSubmission(req.Form)
	if len(fieldErrs) > 0 {
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		return "", badRequest("Validation failed", fieldErrs)
	}

	church, err := s.deps.Churches.Get(ctx, input.ChurchID)
	switch {
	case errors.Is(err, database.ErrNotFound), err == nil && !church.IsActive:
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		return "", badRequest("Validation failed", []models.FieldError{
			{Field: "churchId", Message: "Unknown or inactive location"},
		})
	case err != nil:
		metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		return "", internalError(fmt.Errorf("failed to look up church: %w", err))
	}

	if req.FilePath == "" {
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		return "", badRequest("Photo is required", nil)
	}
	file := upload.ValidateFile(req.FilePath, req.FileName, req.FileMIME, s.deps.Policy)
	if !file.Valid {
		log.WithFields(log.Fields{"file": upload.SanitizeFilename(req.FileName)}).Warnf("Rejected upload: %s", file.Reason)
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		return "", badRequest(file.Reason, nil)
	}

	data, err := os.ReadFile(req.FilePath)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		return "", internalError(fmt.Errorf("failed to read upload: %w", err))
	}

	id := s.newID()
	key := storage.SubmissionKey(id, file.SecureFilename)
	if err := s.deps.Store.Put(ctx, key, data, file.DetectedMIME); err != nil {
		log.Errorf("Failed to upload photo for submission %s: %v", id, err)
		s.compensate(ctx, key)
		metrics.SubmissionsTotal.WithLabelValues("storage_error").Inc()
		return "", internalError(err)
	}

	now := s.now()
	sub := &models.Submission{
		ID:                        id,
		SubmittedAt:               now,
		UpdatedAt:                 now,
		FirstName:                 input.FirstName,
		LastName:                  input.LastName,
		DateOfBirth:               input.DateOfBirth,
		Phone:                     input.Phone,
		Email:                     input.Email,
		ChurchID:                  input.ChurchID,
		Consent:                   input.Consent,
		FamilyHistoryDiabetes:     input.FamilyHistoryDiabetes,
		FamilyHistoryHypertension: input.FamilyHistoryHypertension,
		FamilyHistoryDementia:     input.FamilyHistoryDementia,
		NerveSymptoms:             input.NerveSymptoms,
		Sex:                       input.Sex,
		InsuranceType:             input.InsuranceType,
		PhotoKey:                  key,
		FollowUpStatus:            models.FollowUpPending,
	}

	s.applyAnalysis(ctx, sub, data)

	sub.DeviceInfo, sub.NetworkInfo = fingerprint.Extract(req.Headers, req.RemoteAddr, req.ClientInfo)
	sub.Fingerprint = fingerprint.Generate(sub.DeviceInfo, sub.NetworkInfo, req.Form, now)
	sub.SessionID = fingerprint.NewSessionID()
	sub.FraudSignals = fingerprint.FraudSignals(req.Headers, sub.NetworkInfo.IP)
	if len(sub.FraudSignals) > 0 {
		log.WithFields(log.Fields{"submission": id, "signals": sub.FraudSignals}).Warn("Submission carries fraud signals")
	}

	if err := s.deps.Submissions.Create(ctx, sub); err != nil {
		log.Errorf("Failed to persist submission %s: %v", id, err)
		s.compensate(ctx, key)
		metrics.SubmissionsTotal.WithLabelValues("db_error").Inc()
		return "", internalError(err)
	}

	metrics.SubmissionsTotal.WithLabelValues("created").Inc()
	s.afterPersist(ctx, sub)
	log.Infof("Submission %s created for church %s", id, sub.ChurchID)
	return id, nil
}

// applyAnalysis fills the derived fields. Values outside the plausible
// ranges are dropped; without a BMI no risk score is computed.
func (s *IntakeService) applyAnalysis(ctx context.Context, sub *models.Submission, image []byte) {
	if s.deps.Analyzer == nil {
		return
	}
	result := s.deps.Analyzer.Analyze(ctx, image)
	if !result.Success {
		log.Warnf("Analysis unavailable for submission %s: %s", sub.ID, result.Error)
		return
	}

	invalid := map[string]bool{}
	for _, fe := range validation.ValidateAnalysis(validation.AnalysisValues{BMI: result.BMI, Age: result.Age}) {
		invalid[fe.Field] = true
	}

	if !invalid["estimatedAge"] {
		age := result.Age
		sub.EstimatedAge = &age
	}
	if result.Gender != "" {
		gender := result.Gender
		sub.EstimatedGender = &gender
	}
	if invalid["estimatedBMI"] {
		log.Warnf("Discarding implausible BMI %.1f for submission %s", result.BMI, sub.ID)
		return
	}

	bmi := result.BMI
	category := risk.CategoryForBMI(bmi)
	sub.EstimatedBMI = &bmi
	sub.BMICategory = &category

	assessment := risk.Assess(bmi, risk.Factors{
		FamilyHistoryDiabetes:     sub.FamilyHistoryDiabetes,
		FamilyHistoryHypertension: sub.FamilyHistoryHypertension,
		FamilyHistoryDementia:     sub.FamilyHistoryDementia,
		NerveSymptoms:             sub.NerveSymptoms,
	})
	sub.HealthRiskScore = &assessment.Score
	sub.HealthRiskLevel = &assessment.Level
	sub.Recommendations = assessment.Recommendations
}

// afterPersist runs the best-effort follow-ups; none of them can fail the request
func (s *IntakeService) afterPersist(ctx context.Context, sub *models.Submission) {
	if s.deps.Churches != nil {
		if err := s.deps.Churches.IncrementSubmissionCount(ctx, sub.ChurchID); err != nil {
			log.Warnf("Failed to increment submission count for church %s: %v", sub.ChurchID, err)
		}
	}

	event := rabbitmq.NewSubmissionEvent(sub)
	if s.deps.Events != nil {
		if err := s.deps.Events.PublishEvent(ctx, event); err != nil {
			log.Warnf("Failed to publish event for submission %s: %v", sub.ID, err)
		}
	}
	if s.deps.Live != nil {
		s.deps.Live.BroadcastSubmission(event)
	}

	if s.deps.SendConfirmation && s.deps.Messenger != nil && s.deps.Messenger.SMSEnabled() {
		msg := fmt.Sprintf("Hi %s, thank you for completing your health screening. Our team will follow up with you soon.", sub.FirstName)
		to := notify.Recipient{Name: sub.FullName(), Phone: sub.Phone, Email: sub.Email}
		if err := s.deps.Messenger.Send(ctx, notify.ChannelSMS, to, "", msg); err != nil {
			log.Warnf("Failed to send confirmation sms for submission %s: %v", sub.ID, err)
		}
	}
}

// compensate removes an object written earlier in the request. It runs even
// when the request context is already cancelled.
func (s *IntakeService) compensate(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	if err := s.deps.Store.Delete(ctx, key); err != nil {
		log.Errorf("Failed to delete orphaned photo %s: %v", key, err)
		metrics.CompensatingDeletesTotal.WithLabelValues("failed").Inc()
		return
	}
	metrics.CompensatingDeletesTotal.WithLabelValues("deleted").Inc()
	log.Infof("Deleted orphaned photo %s", key)
}
