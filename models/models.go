package models

import "time"

// Risk levels assigned by the scorer
const (
	RiskLow      = "Low"
	RiskModerate = "Moderate"
	RiskHigh     = "High"
	RiskVeryHigh = "Very High"
)

// BMI categories stored on a submission
const (
	BMIUnderweight = "Underweight"
	BMINormal      = "Normal"
	BMIOverweight  = "Overweight"
	BMIObese       = "Obese"
)

// Follow-up workflow states
const (
	FollowUpPending   = "Pending"
	FollowUpContacted = "Contacted"
	FollowUpScheduled = "Scheduled"
	FollowUpCompleted = "Completed"
)

// RoleAdmin is the only role allowed into the admin API
const RoleAdmin = "admin"

var (
	RiskLevels       = []string{RiskLow, RiskModerate, RiskHigh, RiskVeryHigh}
	FollowUpStatuses = []string{FollowUpPending, FollowUpContacted, FollowUpScheduled, FollowUpCompleted}
)

// Browser is the parsed browser part of a user agent
type Browser struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// OS is the parsed operating system part of a user agent
type OS struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Device describes the form factor of the submitting device
type Device struct {
	Type  string `json:"type"`
	Brand string `json:"brand,omitempty"`
	Model string `json:"model,omitempty"`
}

// DeviceInfo is the device descriptor recorded with every submission
type DeviceInfo struct {
	UserAgent  string  `json:"userAgent"`
	Browser    Browser `json:"browser"`
	OS         OS      `json:"os"`
	Device     Device  `json:"device"`
	ScreenSize string  `json:"screenSize,omitempty"`
	Timezone   string  `json:"timezone,omitempty"`
	Language   string  `json:"language,omitempty"`
}

// NetworkInfo is the network descriptor recorded with every submission
type NetworkInfo struct {
	IP           string `json:"ip"`
	IPType       string `json:"ipType"`
	Referrer     string `json:"referrer,omitempty"`
	ForwardedFor string `json:"forwardedFor,omitempty"`
}

// ClientInfo is the optional device JSON collected by the form itself
type ClientInfo struct {
	ScreenSize string `json:"screenSize"`
	Timezone   string `json:"timezone"`
	Language   string `json:"language"`
}

// SubmissionInput is a validated and normalized intake payload
type SubmissionInput struct {
	FirstName                 string `json:"firstName" validate:"required,max=100,personname"`
	LastName                  string `json:"lastName" validate:"required,max=100,personname"`
	DateOfBirth               string `json:"dateOfBirth" validate:"required,usdate"`
	ChurchID                  string `json:"churchId" validate:"required,max=64"`
	Phone                     string `json:"phone" validate:"required,usphone"`
	Email                     string `json:"email,omitempty" validate:"omitempty,max=254,email"`
	Sex                       string `json:"sex,omitempty" validate:"omitempty,oneof=male female other prefer_not_to_say"`
	InsuranceType             string `json:"insuranceType,omitempty" validate:"omitempty,oneof=medicare medicaid private uninsured other"`
	Consent                   bool   `json:"consent" validate:"consent"`
	FamilyHistoryDiabetes     bool   `json:"familyHistoryDiabetes"`
	FamilyHistoryHypertension bool   `json:"familyHistoryHypertension"`
	FamilyHistoryDementia     bool   `json:"familyHistoryDementia"`
	NerveSymptoms             bool   `json:"nerveSymptoms"`
}

// Submission is one health-screening record
type Submission struct {
	ID          string    `json:"id"`
	SubmittedAt time.Time `json:"submittedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"`
	Phone       string `json:"phone"`
	Email       string `json:"email,omitempty"`
	ChurchID    string `json:"churchId"`
	Consent     bool   `json:"consent"`

	FamilyHistoryDiabetes     bool   `json:"familyHistoryDiabetes"`
	FamilyHistoryHypertension bool   `json:"familyHistoryHypertension"`
	FamilyHistoryDementia     bool   `json:"familyHistoryDementia"`
	NerveSymptoms             bool   `json:"nerveSymptoms"`
	Sex                       string `json:"sex,omitempty"`
	InsuranceType             string `json:"insuranceType,omitempty"`

	PhotoKey string `json:"photoKey"`

	EstimatedBMI    *float64 `json:"estimatedBMI"`
	BMICategory     *string  `json:"bmiCategory"`
	EstimatedAge    *int     `json:"estimatedAge"`
	EstimatedGender *string  `json:"estimatedGender"`
	HealthRiskLevel *string  `json:"healthRiskLevel"`
	HealthRiskScore *int     `json:"healthRiskScore"`
	Recommendations []string `json:"recommendations"`

	FollowUpStatus string  `json:"followUpStatus"`
	FollowUpNotes  *string `json:"followUpNotes"`
	FollowUpDate   *string `json:"followUpDate"`

	DeviceInfo   DeviceInfo  `json:"deviceInfo"`
	NetworkInfo  NetworkInfo `json:"networkInfo"`
	Fingerprint  string      `json:"fingerprint"`
	SessionID    string      `json:"sessionId"`
	FraudSignals []string    `json:"fraudSignals,omitempty"`
}

// FullName joins first and last name
func (s *Submission) FullName() string {
	return s.FirstName + " " + s.LastName
}

// SubmissionSummary is what the live admin feed and event bus carry
type SubmissionSummary struct {
	ID              string    `json:"id"`
	ChurchID        string    `json:"churchId"`
	HealthRiskLevel *string   `json:"healthRiskLevel"`
	SubmittedAt     time.Time `json:"submittedAt"`
}

// SubmissionFilter narrows admin submission queries
type SubmissionFilter struct {
	ChurchID         string     `json:"churchId,omitempty"`
	StartDate        *time.Time `json:"startDate,omitempty"`
	EndDate          *time.Time `json:"endDate,omitempty"`
	RiskLevels       []string   `json:"riskLevels,omitempty"`
	FollowUpStatuses []string   `json:"followUpStatuses,omitempty"`
	SearchTerm       string     `json:"searchTerm,omitempty"`
	PageSize         int        `json:"pageSize,omitempty"`
	Cursor           string     `json:"cursor,omitempty"`
}

// SubmissionPage is one page of query results
type SubmissionPage struct {
	Items      []Submission `json:"items"`
	NextCursor string       `json:"nextCursor,omitempty"`
	Count      int          `json:"count"`
}

// FollowUpUpdate is a sparse follow-up mutation; nil fields are left alone
type FollowUpUpdate struct {
	FollowUpStatus *string `json:"followUpStatus,omitempty" validate:"omitempty,oneof=Pending Contacted Scheduled Completed"`
	FollowUpNotes  *string `json:"followUpNotes,omitempty" validate:"omitempty,max=2000"`
	FollowUpDate   *string `json:"followUpDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// IsEmpty reports whether no field was supplied
func (u FollowUpUpdate) IsEmpty() bool {
	return u.FollowUpStatus == nil && u.FollowUpNotes == nil && u.FollowUpDate == nil
}

// SubmissionStats aggregates counts for the dashboard
type SubmissionStats struct {
	Total            int            `json:"total"`
	ByRiskLevel      map[string]int `json:"byRiskLevel"`
	ByFollowUpStatus map[string]int `json:"byFollowUpStatus"`
	AnalysisMissing  int            `json:"analysisMissing"`
}

// Church is an outreach location that hosts screenings
type Church struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Address          string     `json:"address"`
	ContactPerson    string     `json:"contactPerson"`
	ContactEmail     string     `json:"contactEmail"`
	ContactPhone     string     `json:"contactPhone"`
	IsActive         bool       `json:"isActive"`
	TotalSubmissions int        `json:"totalSubmissions"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	ArchivedAt       *time.Time `json:"archivedAt,omitempty"`
}

// ChurchRequest creates or updates an outreach location
type ChurchRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	Address       string `json:"address" validate:"max=500"`
	ContactPerson string `json:"contactPerson" validate:"max=200"`
	ContactEmail  string `json:"contactEmail" validate:"omitempty,email,max=254"`
	ContactPhone  string `json:"contactPhone" validate:"omitempty,usphone"`
	IsActive      *bool  `json:"isActive,omitempty"`
}

// ChurchDeleteResult reports which branch of the delete rule was taken
type ChurchDeleteResult struct {
	ID          string `json:"id"`
	Deleted     bool   `json:"deleted"`
	Archived    bool   `json:"archived"`
	Submissions int    `json:"submissions"`
}

// User is a dashboard account
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// LoginRequest represents the authentication request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is returned after cookies are set
type LoginResponse struct {
	User      *User     `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ExportRequest asks for a file export of filtered submissions
type ExportRequest struct {
	Format  string           `json:"format" binding:"required"`
	Filters SubmissionFilter `json:"filters"`
}

// AdminPhotoURLRequest asks for a signed URL by storage key
type AdminPhotoURLRequest struct {
	PhotoPath string `json:"photoPath" binding:"required"`
}

// ParticipantPhotoURLRequest asks for a signed URL by submission id
type ParticipantPhotoURLRequest struct {
	SubmissionID      string `json:"submissionId" binding:"required"`
	PhoneVerification string `json:"phoneVerification"`
}

// SignedURLResponse carries a time-limited object URL
type SignedURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NotifyRequest sends a message to a participant
type NotifyRequest struct {
	Channel string `json:"channel" binding:"required,oneof=sms email"`
	Subject string `json:"subject" binding:"max=200"`
	Message string `json:"message" binding:"required,max=1600"`
}

// CreatedResponse is the intake acknowledgement payload
type CreatedResponse struct {
	ID string `json:"id"`
}

// SuccessResponse wraps successful payloads
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError is one field-level validation failure
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// SubmissionEvent is published after a submission is persisted
type SubmissionEvent struct {
	Type       string            `json:"type"`
	Submission SubmissionSummary `json:"submission"`
}
