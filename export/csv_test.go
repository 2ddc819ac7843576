package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-screening/models"
)

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, Header, records[0])
}

func TestWriteCSVRow(t *testing.T) {
	bmi := 31.04
	score := 5
	level := models.RiskHigh
	notes := "called, said \"later\""
	sub := models.Submission{
		ID:                    "s1",
		SubmittedAt:           time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC),
		FirstName:             "Ann",
		LastName:              "Lee",
		Consent:               true,
		FamilyHistoryDiabetes: true,
		EstimatedBMI:          &bmi,
		HealthRiskScore:       &score,
		HealthRiskLevel:       &level,
		Recommendations:       []string{"a", "b"},
		FollowUpStatus:        models.FollowUpPending,
		FollowUpNotes:         &notes,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []models.Submission{sub}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	got := map[string]string{}
	for i, col := range Header {
		got[col] = records[1][i]
	}
	assert.Equal(t, "2024-06-01T14:30:00Z", got["Submitted At"])
	assert.Equal(t, "Yes", got["Family History Diabetes"])
	assert.Equal(t, "No", got["Nerve Symptoms"])
	assert.Equal(t, "31.0", got["Estimated BMI"])
	assert.Equal(t, "", got["Estimated Age"])
	assert.Equal(t, "5", got["Health Risk Score"])
	assert.Equal(t, "a; b", got["Recommendations"])
	assert.Equal(t, notes, got["Follow-up Notes"])
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "screenings-20240601-143000.csv", Filename(time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC)))
}
