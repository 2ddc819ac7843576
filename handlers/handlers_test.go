package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-screening/database"
	"health-screening/export"
	"health-screening/middleware"
	"health-screening/models"
	"health-screening/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var errBoom = errors.New("boom")

type stubSubmitter struct {
	got      service.IntakeRequest
	fileSeen bool
	id       string
	err      *service.IntakeError
}

func (s *stubSubmitter) Submit(ctx context.Context, req service.IntakeRequest) (string, *service.IntakeError) {
	s.got = req
	if req.FilePath != "" {
		_, err := os.Stat(req.FilePath)
		s.fileSeen = err == nil
	}
	return s.id, s.err
}

type stubAdmin struct {
	filter    models.SubmissionFilter
	exportReq models.ExportRequest
	err       error
}

func (s *stubAdmin) Query(ctx context.Context, f models.SubmissionFilter) (*models.SubmissionPage, error) {
	s.filter = f
	return &models.SubmissionPage{Items: []models.Submission{}}, s.err
}

func (s *stubAdmin) Get(ctx context.Context, id string) (*models.Submission, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Submission{ID: id}, nil
}

func (s *stubAdmin) UpdateFollowUp(ctx context.Context, id string, u models.FollowUpUpdate) (*models.Submission, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Submission{ID: id, FollowUpStatus: *u.FollowUpStatus}, nil
}

func (s *stubAdmin) Export(ctx context.Context, req models.ExportRequest, w io.Writer) error {
	s.exportReq = req
	if s.err != nil {
		return s.err
	}
	return export.WriteCSV(w, nil)
}

func (s *stubAdmin) Stats(ctx context.Context, churchID string) (*models.SubmissionStats, error) {
	return &models.SubmissionStats{}, s.err
}

func (s *stubAdmin) Notify(ctx context.Context, id string, req models.NotifyRequest) error {
	return s.err
}

type stubPhotos struct{}

func (stubPhotos) AdminURL(ctx context.Context, photoPath string) (*models.SignedURLResponse, error) {
	if !strings.HasPrefix(photoPath, "submissions/") {
		return nil, service.ErrInvalidPhotoPath
	}
	return &models.SignedURLResponse{URL: "https://example.org/" + photoPath}, nil
}

func (stubPhotos) ParticipantURL(ctx context.Context, submissionID, verification string) (*models.SignedURLResponse, error) {
	if verification != "" && verification != "5678" {
		return nil, service.ErrVerificationFailed
	}
	return &models.SignedURLResponse{URL: "https://example.org/" + submissionID}, nil
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body
}

func multipartBody(t *testing.T, fields map[string]string, mime string, photo []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if photo != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="me.jpg"`, PhotoField))
		h.Set("Content-Type", mime)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestSubmitCreated(t *testing.T) {
	stub := &stubSubmitter{id: "abc-123"}
	r := gin.New()
	r.POST("/submissions", NewIntakeHandler(stub, 5<<20).Submit)

	body, ctype := multipartBody(t, map[string]string{
		"firstName":  "Mary",
		"deviceInfo": `{"screenSize":"390x844","timezone":"America/Chicago","language":"en-US"}`,
	}, "image/jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0})
	req := httptest.NewRequest(http.MethodPost, "/submissions", body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var res struct {
		Success bool                   `json:"success"`
		Data    models.CreatedResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "abc-123", res.Data.ID)

	assert.True(t, stub.fileSeen)
	assert.Equal(t, "me.jpg", stub.got.FileName)
	assert.Equal(t, "image/jpeg", stub.got.FileMIME)
	assert.Equal(t, "Mary", stub.got.Form["firstName"])
	assert.NotContains(t, stub.got.Form, "deviceInfo")
	assert.Equal(t, "America/Chicago", stub.got.ClientInfo.Timezone)

	_, err := os.Stat(stub.got.FilePath)
	assert.True(t, os.IsNotExist(err), "spooled upload must be removed")
}

func TestSubmitReportsIntakeErrors(t *testing.T) {
	stub := &stubSubmitter{err: &service.IntakeError{
		Status:  http.StatusBadRequest,
		Message: "Validation failed",
		Fields:  []models.FieldError{{Field: "phone", Message: "must be a valid US phone number"}},
	}}
	r := gin.New()
	r.POST("/submissions", NewIntakeHandler(stub, 5<<20).Submit)

	body, ctype := multipartBody(t, map[string]string{"firstName": "Mary"}, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/submissions", body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	res := decodeError(t, w)
	assert.Equal(t, "Validation failed", res.Error)
	require.Len(t, res.Details, 1)
	assert.Equal(t, "phone", res.Details[0].Field)
	assert.Empty(t, stub.got.FilePath)
}

func TestSubmitRejectsOversizedBody(t *testing.T) {
	stub := &stubSubmitter{id: "x"}
	r := gin.New()
	r.POST("/submissions", NewIntakeHandler(stub, 1024).Submit)

	body, ctype := multipartBody(t, nil, "image/jpeg", bytes.Repeat([]byte{0xAB}, 2<<20))
	req := httptest.NewRequest(http.MethodPost, "/submissions", body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, stub.got.Form)
}

func TestSubmitRejectsNonMultipart(t *testing.T) {
	r := gin.New()
	r.POST("/submissions", NewIntakeHandler(&stubSubmitter{}, 1024).Submit)

	req := httptest.NewRequest(http.MethodPost, "/submissions", strings.NewReader(`{"firstName":"Mary"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func newAdminRouter(admin *stubAdmin) *gin.Engine {
	h := NewAdminHandler(admin, stubPhotos{})
	r := gin.New()
	r.GET("/admin/submissions", h.ListSubmissions)
	r.GET("/admin/submissions/:id", h.GetSubmission)
	r.PUT("/admin/submissions/:id/follow-up", h.UpdateFollowUp)
	r.POST("/admin/export", h.Export)
	r.POST("/admin/photos/signed-url", h.AdminPhotoURL)
	r.POST("/photos/signed-url", h.ParticipantPhotoURL)
	return r
}

func TestListSubmissionsParsesQuery(t *testing.T) {
	admin := &stubAdmin{}
	r := newAdminRouter(admin)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/admin/submissions?churchId=grace&startDate=2024-01-01&endDate=2024-01-31&riskLevels=High,Very%20High&followUpStatuses=Pending&pageSize=25", nil))

	require.Equal(t, http.StatusOK, w.Code)
	f := admin.filter
	assert.Equal(t, "grace", f.ChurchID)
	assert.Equal(t, []string{"High", "Very High"}, f.RiskLevels)
	assert.Equal(t, []string{"Pending"}, f.FollowUpStatuses)
	assert.Equal(t, 25, f.PageSize)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *f.StartDate)
	assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC), *f.EndDate)
}

func TestListSubmissionsRejectsBadQuery(t *testing.T) {
	r := newAdminRouter(&stubAdmin{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/submissions?startDate=01/02/2024&pageSize=lots", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	res := decodeError(t, w)
	require.Len(t, res.Details, 2)
	assert.Equal(t, "startDate", res.Details[0].Field)
	assert.Equal(t, "pageSize", res.Details[1].Field)
}

func TestUpdateFollowUpErrors(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "ok", expected: http.StatusOK},
		{name: "missing id", err: database.ErrNotFound, expected: http.StatusNotFound},
		{name: "empty update", err: &service.ValidationError{Fields: []models.FieldError{{Field: "body"}}}, expected: http.StatusBadRequest},
		{name: "store failure", err: errBoom, expected: http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newAdminRouter(&stubAdmin{err: tc.err})
			req := httptest.NewRequest(http.MethodPut, "/admin/submissions/s1/follow-up", strings.NewReader(`{"followUpStatus":"Contacted"}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.expected, w.Code)
			if tc.expected == http.StatusInternalServerError {
				assert.Equal(t, "Internal server error", decodeError(t, w).Error)
				assert.NotContains(t, w.Body.String(), "boom")
			}
		})
	}
}

func TestExportHeaderOnlyCSV(t *testing.T) {
	admin := &stubAdmin{}
	r := newAdminRouter(admin)

	req := httptest.NewRequest(http.MethodPost, "/admin/export",
		strings.NewReader(`{"format":"csv","filters":{"riskLevels":["Very High"],"startDate":"2024-03-01"}}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment; filename=\"screenings-")
	assert.Equal(t, strings.Join(export.Header, ","), strings.TrimSpace(w.Body.String()))

	assert.Equal(t, []string{"Very High"}, admin.exportReq.Filters.RiskLevels)
	require.NotNil(t, admin.exportReq.Filters.StartDate)
}

func TestExportUnsupportedFormat(t *testing.T) {
	r := newAdminRouter(&stubAdmin{err: service.ErrUnsupportedFormat})

	req := httptest.NewRequest(http.MethodPost, "/admin/export", strings.NewReader(`{"format":"pdf"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPhotoURLs(t *testing.T) {
	r := newAdminRouter(&stubAdmin{})

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, post("/admin/photos/signed-url", `{"photoPath":"submissions/s1/a.jpg"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post("/admin/photos/signed-url", `{"photoPath":"etc/passwd"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post("/admin/photos/signed-url", `{}`).Code)
	assert.Equal(t, http.StatusOK, post("/photos/signed-url", `{"submissionId":"s1","phoneVerification":"5678"}`).Code)
	assert.Equal(t, http.StatusForbidden, post("/photos/signed-url", `{"submissionId":"s1","phoneVerification":"0000"}`).Code)
}

type stubAuth struct {
	loginErr   error
	refreshErr error
	loggedOut  string
}

func (s *stubAuth) pair() *service.TokenPair {
	now := time.Now()
	return &service.TokenPair{
		AccessToken:      "access-jwt",
		AccessExpiresAt:  now.Add(4 * time.Hour),
		RefreshToken:     "refresh-jwt",
		RefreshExpiresAt: now.Add(30 * 24 * time.Hour),
	}
}

func (s *stubAuth) Login(ctx context.Context, email, password string) (*service.TokenPair, *models.User, error) {
	if s.loginErr != nil {
		return nil, nil, s.loginErr
	}
	return s.pair(), &models.User{ID: "u1", Email: email, Role: models.RoleAdmin}, nil
}

func (s *stubAuth) Refresh(ctx context.Context, token string) (*service.TokenPair, *models.User, error) {
	if s.refreshErr != nil {
		return nil, nil, s.refreshErr
	}
	return s.pair(), &models.User{ID: "u1", Role: models.RoleAdmin}, nil
}

func (s *stubAuth) Logout(ctx context.Context, token string) error {
	s.loggedOut = token
	return nil
}

func newAuthRouter(auth *stubAuth) *gin.Engine {
	h := NewAuthHandler(auth, true, "")
	r := gin.New()
	r.POST("/auth/login", h.Login)
	r.POST("/auth/refresh", h.Refresh)
	r.POST("/auth/logout", h.Logout)
	return r
}

func cookiesByName(w *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range w.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestLoginSetsCookies(t *testing.T) {
	r := newAuthRouter(&stubAuth{})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"admin@example.org","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	cookies := cookiesByName(w)
	require.Contains(t, cookies, middleware.AccessTokenCookie)
	require.Contains(t, cookies, middleware.RefreshTokenCookie)
	access := cookies[middleware.AccessTokenCookie]
	assert.Equal(t, "access-jwt", access.Value)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.InDelta(t, 4*3600, access.MaxAge, 5)
	assert.Equal(t, refreshCookiePath, cookies[middleware.RefreshTokenCookie].Path)
	assert.NotContains(t, w.Body.String(), "access-jwt")
}

func TestLoginFailures(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		body     string
		expected int
	}{
		{name: "bad credentials", err: service.ErrInvalidCredentials, body: `{"email":"a@b.org","password":"x"}`, expected: http.StatusUnauthorized},
		{name: "not admin", err: service.ErrForbidden, body: `{"email":"a@b.org","password":"x"}`, expected: http.StatusForbidden},
		{name: "malformed body", body: `{"email":"not-an-email"}`, expected: http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newAuthRouter(&stubAuth{loginErr: tc.err})
			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.expected, w.Code)
			assert.Empty(t, cookiesByName(w))
		})
	}
}

func TestRefreshAndLogout(t *testing.T) {
	auth := &stubAuth{}
	r := newAuthRouter(auth)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/refresh", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: middleware.RefreshTokenCookie, Value: "old"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "refresh-jwt", cookiesByName(w)[middleware.RefreshTokenCookie].Value)

	auth.refreshErr = service.ErrInvalidToken
	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: middleware.RefreshTokenCookie, Value: "replayed"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Negative(t, cookiesByName(w)[middleware.AccessTokenCookie].MaxAge)

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.RefreshTokenCookie, Value: "current"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "current", auth.loggedOut)
}

type stubChurches struct {
	includeArchived bool
	err             error
}

func (s *stubChurches) List(ctx context.Context, includeArchived bool) ([]models.Church, error) {
	s.includeArchived = includeArchived
	return []models.Church{{ID: "grace", Name: "Grace Fellowship", IsActive: true}}, s.err
}

func (s *stubChurches) Create(ctx context.Context, req models.ChurchRequest) (*models.Church, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Church{ID: "new", Name: req.Name, IsActive: true}, nil
}

func (s *stubChurches) Update(ctx context.Context, id string, req models.ChurchRequest) (*models.Church, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Church{ID: id, Name: req.Name}, nil
}

func (s *stubChurches) Delete(ctx context.Context, id string) (*models.ChurchDeleteResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.ChurchDeleteResult{ID: id, Archived: true, Submissions: 3}, nil
}

func (s *stubChurches) QRCode(ctx context.Context, id string, size int) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

func newChurchRouter(churches *stubChurches) *gin.Engine {
	h := NewChurchHandler(churches)
	r := gin.New()
	r.GET("/churches", h.PublicList)
	r.GET("/admin/churches", h.List)
	r.POST("/admin/churches", h.Create)
	r.DELETE("/admin/churches/:id", h.Delete)
	r.GET("/admin/churches/:id/qr", h.QRCode)
	return r
}

func TestChurchRoutes(t *testing.T) {
	churches := &stubChurches{}
	r := newChurchRouter(churches)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/churches?includeArchived=true", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, churches.includeArchived)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/churches", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, churches.includeArchived)

	req := httptest.NewRequest(http.MethodPost, "/admin/churches", strings.NewReader(`{"name":"Grace"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/admin/churches/grace", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"archived":true`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/churches/grace/qr?size=256", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/churches/grace/qr?size=big", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChurchNotFound(t *testing.T) {
	r := newChurchRouter(&stubChurches{err: database.ErrNotFound})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/admin/churches/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Church not found", decodeError(t, w).Error)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	r := gin.New()
	r.GET("/ok", HealthHandler(pingFunc(func(context.Context) error { return nil })))
	r.GET("/down", HealthHandler(pingFunc(func(context.Context) error { return errBoom })))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/down", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLiveOriginAllowed(t *testing.T) {
	allowed := []string{"https://admin.example.org"}

	testCases := []struct {
		name    string
		origin  string
		host    string
		allowed []string
		want    bool
	}{
		{"no origin header", "", "api.example.org", nil, true},
		{"listed origin", "https://admin.example.org", "api.example.org", allowed, true},
		{"unlisted origin", "https://evil.example.com", "api.example.org", allowed, false},
		{"same host without list", "https://api.example.org", "api.example.org", nil, true},
		{"cross origin without list", "https://evil.example.com", "api.example.org", nil, false},
		{"malformed origin", "://bad", "api.example.org", nil, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, originAllowed(tc.origin, tc.host, tc.allowed))
		})
	}
}
