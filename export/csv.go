package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"health-screening/models"
)

// FormatCSV is the only export format currently served
const FormatCSV = "csv"

// Header is the fixed column set of a submissions export
var Header = []string{
	"ID", "Submitted At", "First Name", "Last Name", "Date of Birth", "Phone", "Email", "Church ID",
	"Sex", "Insurance Type", "Consent",
	"Family History Diabetes", "Family History Hypertension", "Family History Dementia", "Nerve Symptoms",
	"Estimated BMI", "BMI Category", "Estimated Age", "Estimated Gender",
	"Health Risk Level", "Health Risk Score", "Recommendations",
	"Follow-up Status", "Follow-up Notes", "Follow-up Date",
	"Browser", "OS", "Device Type", "IP Address", "IP Type", "Fingerprint", "Session ID", "Fraud Signals",
	"Photo Key",
}

// Filename returns the attachment name for an export generated at t
func Filename(t time.Time) string {
	return fmt.Sprintf("screenings-%s.csv", t.UTC().Format("20060102-150405"))
}

// WriteCSV writes the header followed by one row per submission. An empty
// slice produces a header-only file.
func WriteCSV(w io.Writer, subs []models.Submission) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i := range subs {
		if err := cw.Write(row(&subs[i])); err != nil {
			return fmt.Errorf("failed to write csv row %s: %w", subs[i].ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(s *models.Submission) []string {
	return []string{
		s.ID,
		s.SubmittedAt.UTC().Format(time.RFC3339),
		s.FirstName,
		s.LastName,
		s.DateOfBirth,
		s.Phone,
		s.Email,
		s.ChurchID,
		s.Sex,
		s.InsuranceType,
		yesNo(s.Consent),
		yesNo(s.FamilyHistoryDiabetes),
		yesNo(s.FamilyHistoryHypertension),
		yesNo(s.FamilyHistoryDementia),
		yesNo(s.NerveSymptoms),
		floatOrEmpty(s.EstimatedBMI),
		strOrEmpty(s.BMICategory),
		intOrEmpty(s.EstimatedAge),
		strOrEmpty(s.EstimatedGender),
		strOrEmpty(s.HealthRiskLevel),
		intOrEmpty(s.HealthRiskScore),
		strings.Join(s.Recommendations, "; "),
		s.FollowUpStatus,
		strOrEmpty(s.FollowUpNotes),
		strOrEmpty(s.FollowUpDate),
		strings.TrimSpace(s.DeviceInfo.Browser.Name + " " + s.DeviceInfo.Browser.Version),
		strings.TrimSpace(s.DeviceInfo.OS.Name + " " + s.DeviceInfo.OS.Version),
		s.DeviceInfo.Device.Type,
		s.NetworkInfo.IP,
		s.NetworkInfo.IPType,
		s.Fingerprint,
		s.SessionID,
		strings.Join(s.FraudSignals, "; "),
		s.PhotoKey,
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intOrEmpty(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatOrEmpty(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}
