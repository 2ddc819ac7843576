package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"health-screening/models"
)

const dateLayout = "2006-01-02"

// filterParams is the wire form of a submission filter. Dates are
// YYYY-MM-DD; the end date covers its whole day.
type filterParams struct {
	ChurchID         string   `json:"churchId"`
	StartDate        string   `json:"startDate"`
	EndDate          string   `json:"endDate"`
	RiskLevels       []string `json:"riskLevels"`
	FollowUpStatuses []string `json:"followUpStatuses"`
	SearchTerm       string   `json:"searchTerm"`
	PageSize         string   `json:"-"`
	Cursor           string   `json:"-"`
}

func queryParams(c *gin.Context) filterParams {
	return filterParams{
		ChurchID:         c.Query("churchId"),
		StartDate:        c.Query("startDate"),
		EndDate:          c.Query("endDate"),
		RiskLevels:       c.QueryArray("riskLevels"),
		FollowUpStatuses: c.QueryArray("followUpStatuses"),
		SearchTerm:       c.Query("searchTerm"),
		PageSize:         c.Query("pageSize"),
		Cursor:           c.Query("cursor"),
	}
}

func (p filterParams) toFilter() (models.SubmissionFilter, []models.FieldError) {
	var errs []models.FieldError
	f := models.SubmissionFilter{
		ChurchID:         strings.TrimSpace(p.ChurchID),
		RiskLevels:       splitList(p.RiskLevels),
		FollowUpStatuses: splitList(p.FollowUpStatuses),
		SearchTerm:       strings.TrimSpace(p.SearchTerm),
		Cursor:           p.Cursor,
	}

	if p.StartDate != "" {
		start, err := time.Parse(dateLayout, p.StartDate)
		if err != nil {
			errs = append(errs, models.FieldError{Field: "startDate", Message: "must be YYYY-MM-DD"})
		} else {
			f.StartDate = &start
		}
	}
	if p.EndDate != "" {
		end, err := time.Parse(dateLayout, p.EndDate)
		if err != nil {
			errs = append(errs, models.FieldError{Field: "endDate", Message: "must be YYYY-MM-DD"})
		} else {
			end = end.Add(24*time.Hour - time.Millisecond)
			f.EndDate = &end
		}
	}
	if p.PageSize != "" {
		n, err := strconv.Atoi(p.PageSize)
		if err != nil || n < 1 {
			errs = append(errs, models.FieldError{Field: "pageSize", Message: "must be a positive integer"})
		} else {
			f.PageSize = n
		}
	}
	return f, errs
}

// splitList accepts repeated values and comma separated lists alike
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return lo.Uniq(out)
}
