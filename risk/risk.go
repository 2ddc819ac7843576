// Package risk scores a screening from the estimated BMI and self-reported
// history. Scoring is additive and deterministic.
package risk

import "health-screening/models"

// Factors are the self-reported history flags that feed the score
type Factors struct {
	FamilyHistoryDiabetes     bool
	FamilyHistoryHypertension bool
	FamilyHistoryDementia     bool
	NerveSymptoms             bool
}

// Assessment is the scored outcome
type Assessment struct {
	Score           int
	Level           string
	Recommendations []string
}

const (
	pointsObese        = 3
	pointsOverweight   = 2
	pointsDiabetes     = 2
	pointsHypertension = 2
	pointsDementia     = 1
	pointsNerve        = 2
)

var (
	recObese        = "Your estimated BMI is in the obese range. Talk with a healthcare provider about a weight management plan."
	recOverweight   = "Your estimated BMI is in the overweight range. Regular activity and a balanced diet can help."
	recDiabetes     = "Family history of diabetes: ask your provider about an A1C or fasting glucose test."
	recHypertension = "Family history of high blood pressure: have your blood pressure checked at least once a year."
	recDementia     = "Family history of dementia: stay socially and mentally active and mention it at your next checkup."
	recNerve        = "Numbness, tingling or burning in hands or feet should be evaluated by a provider soon."

	generalRecommendations = []string{
		"Schedule an annual wellness visit with a primary care provider.",
		"Aim for at least 150 minutes of moderate physical activity each week.",
		"Eat plenty of vegetables, fruits and whole grains and limit sugary drinks.",
	}
)

// Assess computes the additive score, its level and the recommendations
func Assess(bmi float64, f Factors) Assessment {
	var (
		score int
		recs  []string
	)

	switch {
	case bmi >= 30:
		score += pointsObese
		recs = append(recs, recObese)
	case bmi >= 25:
		score += pointsOverweight
		recs = append(recs, recOverweight)
	}
	if f.FamilyHistoryDiabetes {
		score += pointsDiabetes
		recs = append(recs, recDiabetes)
	}
	if f.FamilyHistoryHypertension {
		score += pointsHypertension
		recs = append(recs, recHypertension)
	}
	if f.FamilyHistoryDementia {
		score += pointsDementia
		recs = append(recs, recDementia)
	}
	if f.NerveSymptoms {
		score += pointsNerve
		recs = append(recs, recNerve)
	}

	recs = append(recs, generalRecommendations...)

	return Assessment{
		Score:           score,
		Level:           Level(score),
		Recommendations: recs,
	}
}

// Level maps a score to its label
func Level(score int) string {
	switch {
	case score <= 2:
		return models.RiskLow
	case score <= 4:
		return models.RiskModerate
	case score <= 6:
		return models.RiskHigh
	}
	return models.RiskVeryHigh
}

// CategoryForBMI buckets a BMI into the stored category
func CategoryForBMI(bmi float64) string {
	switch {
	case bmi < 18.5:
		return models.BMIUnderweight
	case bmi < 25:
		return models.BMINormal
	case bmi < 30:
		return models.BMIOverweight
	}
	return models.BMIObese
}
