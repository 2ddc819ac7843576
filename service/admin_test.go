package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-screening/database"
	"health-screening/export"
	"health-screening/models"
	"health-screening/notify"
)

func TestExportWithNoMatchesWritesHeaderOnly(t *testing.T) {
	svc := NewAdminService(newFakeSubmissions(), nil, 1000)

	var buf bytes.Buffer
	err := svc.Export(context.Background(), models.ExportRequest{
		Format:  "csv",
		Filters: models.SubmissionFilter{RiskLevels: []string{models.RiskVeryHigh}},
	}, &buf)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, strings.Join(export.Header, ","), lines[0])
}

func TestExportRejectsBadRequests(t *testing.T) {
	svc := NewAdminService(newFakeSubmissions(), nil, 1000)

	err := svc.Export(context.Background(), models.ExportRequest{Format: "xlsx"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	err = svc.Export(context.Background(), models.ExportRequest{
		Format:  "CSV",
		Filters: models.SubmissionFilter{RiskLevels: []string{"Extreme"}},
	}, &bytes.Buffer{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "riskLevels", verr.Fields[0].Field)
}

func TestUpdateFollowUp(t *testing.T) {
	subs := newFakeSubmissions()
	subs.byID["s1"] = &models.Submission{ID: "s1", FollowUpStatus: models.FollowUpPending}
	svc := NewAdminService(subs, nil, 1000)

	status := models.FollowUpScheduled
	updated, err := svc.UpdateFollowUp(context.Background(), "s1", models.FollowUpUpdate{FollowUpStatus: &status})
	require.NoError(t, err)
	assert.Equal(t, models.FollowUpScheduled, updated.FollowUpStatus)

	_, err = svc.UpdateFollowUp(context.Background(), "missing", models.FollowUpUpdate{FollowUpStatus: &status})
	assert.ErrorIs(t, err, database.ErrNotFound)

	var verr *ValidationError
	_, err = svc.UpdateFollowUp(context.Background(), "s1", models.FollowUpUpdate{})
	require.ErrorAs(t, err, &verr)

	bad := "Done"
	_, err = svc.UpdateFollowUp(context.Background(), "s1", models.FollowUpUpdate{FollowUpStatus: &bad})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "followUpStatus", verr.Fields[0].Field)
	assert.Len(t, subs.updated, 1)
}

func TestNotify(t *testing.T) {
	subs := newFakeSubmissions()
	subs.byID["s1"] = &models.Submission{ID: "s1", FirstName: "Ann", LastName: "Lee", Phone: "5551234567", Email: "ann@example.org"}
	messenger := &fakeMessenger{sms: true}
	svc := NewAdminService(subs, messenger, 1000)

	err := svc.Notify(context.Background(), "s1", models.NotifyRequest{Channel: notify.ChannelEmail, Message: "Your appointment is Tuesday"})
	require.NoError(t, err)
	require.Len(t, messenger.sent, 1)
	assert.Equal(t, "ann@example.org", messenger.sent[0].to.Email)
	assert.Equal(t, "Ann Lee", messenger.sent[0].to.Name)
	assert.Equal(t, "Your health screening follow-up", messenger.sent[0].subject)

	err = svc.Notify(context.Background(), "missing", models.NotifyRequest{Channel: notify.ChannelSMS, Message: "hi"})
	assert.ErrorIs(t, err, database.ErrNotFound)

	err = NewAdminService(subs, nil, 1000).Notify(context.Background(), "s1", models.NotifyRequest{Channel: notify.ChannelSMS, Message: "hi"})
	assert.ErrorIs(t, err, notify.ErrChannelDisabled)
}

func TestValidateFilter(t *testing.T) {
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Empty(t, ValidateFilter(models.SubmissionFilter{
		RiskLevels:       []string{models.RiskLow, models.RiskVeryHigh},
		FollowUpStatuses: []string{models.FollowUpCompleted},
	}))

	errs := ValidateFilter(models.SubmissionFilter{
		FollowUpStatuses: []string{"Lost"},
		StartDate:        &start,
		EndDate:          &end,
	})
	require.Len(t, errs, 2)
	assert.Equal(t, "followUpStatuses", errs[0].Field)
	assert.Equal(t, "endDate", errs[1].Field)
}
