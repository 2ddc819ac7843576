package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"health-screening/analysis"
	"health-screening/database"
	"health-screening/models"
	"health-screening/notify"
)

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = body
	return nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeObjectStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://bucket.example.org/" + key + "?X-Amz-Expires=" + ttl.String(), nil
}

type fakeAnalyzer struct {
	result analysis.Result
	calls  int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, image []byte) analysis.Result {
	f.calls++
	return f.result
}

type fakeSubmissions struct {
	created   []*models.Submission
	byID      map[string]*models.Submission
	createErr error
	listed    []models.Submission
	updated   []models.FollowUpUpdate
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{byID: map[string]*models.Submission{}}
}

func (f *fakeSubmissions) Create(ctx context.Context, sub *models.Submission) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, sub)
	f.byID[sub.ID] = sub
	return nil
}

func (f *fakeSubmissions) Get(ctx context.Context, id string) (*models.Submission, error) {
	sub, ok := f.byID[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return sub, nil
}

func (f *fakeSubmissions) Query(ctx context.Context, filter models.SubmissionFilter) (*models.SubmissionPage, error) {
	return &models.SubmissionPage{Items: []models.Submission{}}, nil
}

func (f *fakeSubmissions) ListAll(ctx context.Context, filter models.SubmissionFilter, limit int) ([]models.Submission, error) {
	return f.listed, nil
}

func (f *fakeSubmissions) UpdateFollowUp(ctx context.Context, id string, u models.FollowUpUpdate) error {
	sub, ok := f.byID[id]
	if !ok {
		return database.ErrNotFound
	}
	if u.FollowUpStatus != nil {
		sub.FollowUpStatus = *u.FollowUpStatus
	}
	if u.FollowUpNotes != nil {
		sub.FollowUpNotes = u.FollowUpNotes
	}
	f.updated = append(f.updated, u)
	return nil
}

func (f *fakeSubmissions) Stats(ctx context.Context, churchID string) (*models.SubmissionStats, error) {
	return &models.SubmissionStats{}, nil
}

type fakeChurchDirectory struct {
	churches map[string]*models.Church
	ids      []string
	getErr   error
}

func newFakeChurchDirectory(churches ...models.Church) *fakeChurchDirectory {
	f := &fakeChurchDirectory{churches: map[string]*models.Church{}}
	for i := range churches {
		f.churches[churches[i].ID] = &churches[i]
	}
	return f
}

func (f *fakeChurchDirectory) Get(ctx context.Context, id string) (*models.Church, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.churches[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return c, nil
}

func (f *fakeChurchDirectory) IncrementSubmissionCount(ctx context.Context, id string) error {
	f.ids = append(f.ids, id)
	return nil
}

type fakeEvents struct {
	events []models.SubmissionEvent
	err    error
}

func (f *fakeEvents) PublishEvent(ctx context.Context, event models.SubmissionEvent) error {
	f.events = append(f.events, event)
	return f.err
}

type fakeLive struct {
	events []models.SubmissionEvent
}

func (f *fakeLive) BroadcastSubmission(event models.SubmissionEvent) {
	f.events = append(f.events, event)
}

type sentMessage struct {
	channel string
	to      notify.Recipient
	subject string
	message string
}

type fakeMessenger struct {
	sent []sentMessage
	sms  bool
}

func (f *fakeMessenger) Send(ctx context.Context, channel string, to notify.Recipient, subject, message string) error {
	if channel == notify.ChannelSMS && !f.sms {
		return notify.ErrChannelDisabled
	}
	f.sent = append(f.sent, sentMessage{channel: channel, to: to, subject: subject, message: message})
	return nil
}

func (f *fakeMessenger) SMSEnabled() bool {
	return f.sms
}

type fakeUsers struct {
	byEmail map[string]*models.User
	touched []string
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{byEmail: map[string]*models.User{}}
	for _, u := range users {
		f.byEmail[u.Email] = u
	}
	return f
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, database.ErrNotFound
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeUsers) Create(ctx context.Context, u *models.User) error {
	if _, ok := f.byEmail[u.Email]; ok {
		return database.ErrDuplicate
	}
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUsers) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	f.touched = append(f.touched, id)
	return nil
}

type storedToken struct {
	hash    string
	expires time.Time
	revoked bool
}

type fakeTokens struct {
	tokens map[string]*storedToken
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{tokens: map[string]*storedToken{}}
}

func (f *fakeTokens) Save(ctx context.Context, jti, userID, tokenHash string, expiresAt time.Time) error {
	f.tokens[jti] = &storedToken{hash: tokenHash, expires: expiresAt}
	return nil
}

func (f *fakeTokens) Consume(ctx context.Context, jti, tokenHash string) error {
	t, ok := f.tokens[jti]
	if !ok || t.revoked || t.hash != tokenHash {
		return database.ErrNotFound
	}
	t.revoked = true
	return nil
}

func (f *fakeTokens) Revoke(ctx context.Context, jti string) error {
	if t, ok := f.tokens[jti]; ok {
		t.revoked = true
	}
	return nil
}

var errBoom = errors.New("boom")

// writeJPEG writes a small real JPEG and returns its path
func writeJPEG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	path := filepath.Join(t.TempDir(), "upload")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}
