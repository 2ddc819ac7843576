package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-screening/database"
	"health-screening/models"
)

func newTestPhotoService() *PhotoService {
	subs := newFakeSubmissions()
	subs.byID["s1"] = &models.Submission{ID: "s1", Phone: "(555) 234-5678", PhotoKey: "submissions/s1/123-abc.jpg"}
	svc := NewPhotoService(newFakeObjectStore(), subs, time.Hour, 2*time.Hour)
	svc.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestAdminURL(t *testing.T) {
	svc := newTestPhotoService()

	res, err := svc.AdminURL(context.Background(), "submissions/s1/123-abc.jpg")
	require.NoError(t, err)
	assert.Contains(t, res.URL, "submissions/s1/123-abc.jpg")
	assert.Equal(t, time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC), res.ExpiresAt)

	for _, path := range []string{"", "config/secrets.json", "submissions/../etc/passwd", "/submissions/s1/a.jpg", "submissions/s1"} {
		_, err := svc.AdminURL(context.Background(), path)
		assert.ErrorIs(t, err, ErrInvalidPhotoPath, path)
	}
}

func TestParticipantURL(t *testing.T) {
	svc := newTestPhotoService()

	res, err := svc.ParticipantURL(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC), res.ExpiresAt)

	_, err = svc.ParticipantURL(context.Background(), "s1", "5678")
	assert.NoError(t, err)

	_, err = svc.ParticipantURL(context.Background(), "s1", "1234")
	assert.ErrorIs(t, err, ErrVerificationFailed)

	_, err = svc.ParticipantURL(context.Background(), "nope", "")
	assert.ErrorIs(t, err, database.ErrNotFound)
}
