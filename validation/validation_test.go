package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-screening/models"
)

func validForm() map[string]string {
	return map[string]string{
		"firstName":             "  Mary  Ann ",
		"lastName":              "O'Neil",
		"dateOfBirth":           "04/12/1961",
		"churchId":              "church-1",
		"phone":                 "(312) 555-0142",
		"email":                 "Mary@Example.com",
		"sex":                   "Female",
		"insuranceType":         "medicare",
		"consent":               "true",
		"familyHistoryDiabetes": "on",
	}
}

func TestIsValidDate(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  bool
	}{
		{"leap day", "02/29/2024", true},
		{"non leap day", "02/29/2023", false},
		{"impossible day", "02/30/2024", false},
		{"month 13", "13/01/2020", false},
		{"single digits", "4/1/1990", false},
		{"iso format", "1990-04-01", false},
		{"future", "01/01/2999", false},
		{"plain", "12/31/1999", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsValidDate(tc.input))
		})
	}
}

func TestIsValidPhone(t *testing.T) {
	assert.True(t, IsValidPhone("312-555-0142"))
	assert.True(t, IsValidPhone("(312) 555-0142"))
	assert.True(t, IsValidPhone("+1 312 555 0142"))
	assert.True(t, IsValidPhone("3125550142"))
	assert.False(t, IsValidPhone("555-0142"))
	assert.False(t, IsValidPhone("112-555-0142"))
	assert.False(t, IsValidPhone("phone"))
}

func TestValidateSubmission(t *testing.T) {
	input, errs := ValidateSubmission(validForm())
	require.Empty(t, errs)
	require.NotNil(t, input)

	assert.Equal(t, "Mary Ann", input.FirstName)
	assert.Equal(t, "mary@example.com", input.Email)
	assert.Equal(t, "female", input.Sex)
	assert.True(t, input.Consent)
	assert.True(t, input.FamilyHistoryDiabetes)
	assert.False(t, input.NerveSymptoms)
}

func TestValidateSubmissionErrors(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(map[string]string)
		field  string
	}{
		{"missing consent", func(f map[string]string) { delete(f, "consent") }, "consent"},
		{"consent false", func(f map[string]string) { f["consent"] = "false" }, "consent"},
		{"bad bool", func(f map[string]string) { f["nerveSymptoms"] = "maybe" }, "nerveSymptoms"},
		{"bad date", func(f map[string]string) { f["dateOfBirth"] = "02/30/2024" }, "dateOfBirth"},
		{"missing phone", func(f map[string]string) { delete(f, "phone") }, "phone"},
		{"bad phone", func(f map[string]string) { f["phone"] = "12345" }, "phone"},
		{"bad email", func(f map[string]string) { f["email"] = "nope" }, "email"},
		{"bad sex", func(f map[string]string) { f["sex"] = "unknown" }, "sex"},
		{"name with digits", func(f map[string]string) { f["firstName"] = "R2D2" }, "firstName"},
		{"missing church", func(f map[string]string) { f["churchId"] = " " }, "churchId"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			form := validForm()
			tc.mutate(form)

			input, errs := ValidateSubmission(form)
			assert.Nil(t, input)
			require.NotEmpty(t, errs)

			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tc.field)
		})
	}
}

func TestValidateAnalysis(t *testing.T) {
	assert.Empty(t, ValidateAnalysis(AnalysisValues{BMI: 24.5, Age: 40, Score: 5}))

	errs := ValidateAnalysis(AnalysisValues{BMI: 72, Age: 12, Score: 101})
	require.Len(t, errs, 3)
	assert.Equal(t, "estimatedBMI", errs[0].Field)
	assert.Equal(t, "estimatedAge", errs[1].Field)
	assert.Equal(t, "healthRiskScore", errs[2].Field)
}

func TestValidateFollowUp(t *testing.T) {
	status := "Scheduled"
	date := "2025-03-01"
	assert.Empty(t, ValidateFollowUp(models.FollowUpUpdate{FollowUpStatus: &status, FollowUpDate: &date}))

	errs := ValidateFollowUp(models.FollowUpUpdate{})
	require.Len(t, errs, 1)
	assert.Equal(t, "body", errs[0].Field)

	bad := "Done"
	badDate := "03/01/2025"
	errs = ValidateFollowUp(models.FollowUpUpdate{FollowUpStatus: &bad, FollowUpDate: &badDate})
	assert.Len(t, errs, 2)
}

func TestValidateChurch(t *testing.T) {
	assert.Empty(t, ValidateChurch(models.ChurchRequest{Name: "Grace Chapel", ContactEmail: "office@grace.org"}))
	errs := ValidateChurch(models.ChurchRequest{ContactEmail: "office"})
	assert.Len(t, errs, 2)
}
