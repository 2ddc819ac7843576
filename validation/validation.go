// Package validation checks intake and admin payloads before they reach the
// stores. Every entry point returns field errors instead of panicking.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"health-screening/models"
)

const dateLayout = "01/02/2006"

var (
	usDatePattern    = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	usPhonePattern   = regexp.MustCompile(`^(\+?1[\s.-]?)?\(?[2-9]\d{2}\)?[\s.-]?\d{3}[\s.-]?\d{4}$`)
	personNameRegexp = regexp.MustCompile(`^[\p{L}][\p{L}\p{M} .'-]*$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterValidation("usdate", func(fl validator.FieldLevel) bool {
		return IsValidDate(fl.Field().String())
	})
	v.RegisterValidation("usphone", func(fl validator.FieldLevel) bool {
		return IsValidPhone(fl.Field().String())
	})
	v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return personNameRegexp.MatchString(fl.Field().String())
	})
	v.RegisterValidation("consent", func(fl validator.FieldLevel) bool {
		return fl.Field().Kind() == reflect.Bool && fl.Field().Bool()
	})
	return v
}

// IsValidDate accepts MM/DD/YYYY strings naming a real calendar day that is
// not in the future.
func IsValidDate(s string) bool {
	if !usDatePattern.MatchString(s) {
		return false
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return false
	}
	// round trip guards against normalization of impossible days
	if t.Format(dateLayout) != s {
		return false
	}
	return t.Year() >= 1900 && !t.After(time.Now())
}

// IsValidPhone accepts common US phone formats
func IsValidPhone(s string) bool {
	return usPhonePattern.MatchString(strings.TrimSpace(s))
}

// ValidateSubmission normalizes the raw form values and runs the declarative
// intake rules. It returns either the typed input or field errors.
func ValidateSubmission(form map[string]string) (*models.SubmissionInput, []models.FieldError) {
	get := func(key string) string {
		return strings.TrimSpace(form[key])
	}

	var errs []models.FieldError
	flag := func(key string) bool {
		b, ok := ParseBool(get(key))
		if !ok {
			errs = append(errs, models.FieldError{Field: key, Message: "must be true or false"})
		}
		return b
	}

	input := &models.SubmissionInput{
		FirstName:                 collapseSpaces(get("firstName")),
		LastName:                  collapseSpaces(get("lastName")),
		DateOfBirth:               get("dateOfBirth"),
		ChurchID:                  get("churchId"),
		Phone:                     get("phone"),
		Email:                     strings.ToLower(get("email")),
		Sex:                       strings.ToLower(get("sex")),
		InsuranceType:             strings.ToLower(get("insuranceType")),
		Consent:                   flag("consent"),
		FamilyHistoryDiabetes:     flag("familyHistoryDiabetes"),
		FamilyHistoryHypertension: flag("familyHistoryHypertension"),
		FamilyHistoryDementia:     flag("familyHistoryDementia"),
		NerveSymptoms:             flag("nerveSymptoms"),
	}

	errs = append(errs, Struct(input)...)
	if len(errs) > 0 {
		return nil, errs
	}
	return input, nil
}

// AnalysisValues are the numeric outputs of facial analysis and scoring
type AnalysisValues struct {
	BMI   float64 `json:"estimatedBMI" validate:"gte=10,lte=60"`
	Age   int     `json:"estimatedAge" validate:"gte=18,lte=120"`
	Score int     `json:"healthRiskScore" validate:"gte=0,lte=100"`
}

// ValidateAnalysis checks analysis numbers against their plausible ranges
func ValidateAnalysis(v AnalysisValues) []models.FieldError {
	return Struct(v)
}

// ValidateFollowUp checks an admin follow-up mutation
func ValidateFollowUp(u models.FollowUpUpdate) []models.FieldError {
	if u.IsEmpty() {
		return []models.FieldError{{Field: "body", Message: "at least one follow-up field is required"}}
	}
	return Struct(u)
}

// ValidateChurch checks an outreach location body
func ValidateChurch(req models.ChurchRequest) []models.FieldError {
	return Struct(req)
}

// Struct runs the tag rules on any value and converts failures to field errors
func Struct(v interface{}) []models.FieldError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []models.FieldError{{Field: "body", Message: err.Error()}}
	}
	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "usdate":
		return "must be a valid date in MM/DD/YYYY format"
	case "usphone":
		return "must be a valid US phone number"
	case "personname":
		return "contains invalid characters"
	case "consent":
		return "consent is required to participate"
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	}
	return "is invalid"
}

// ParseBool reads checkbox style form values. Empty means false.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "off", "0", "no":
		return false, true
	case "true", "on", "1", "yes":
		return true, true
	}
	return false, false
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
