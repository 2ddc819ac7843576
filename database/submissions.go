package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"health-screening/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200

	churchDateIndex = "idx_church_submitted"
)

const submissionColumns = `id, submitted_at, updated_at, first_name, last_name, date_of_birth, phone, email,
	church_id, consent, family_history_diabetes, family_history_hypertension, family_history_dementia,
	nerve_symptoms, sex, insurance_type, photo_key, estimated_bmi, bmi_category, estimated_age,
	estimated_gender, health_risk_level, health_risk_score, recommendations, follow_up_status,
	follow_up_notes, follow_up_date, device_info, network_info, fingerprint, session_id, fraud_signals`

// SubmissionStore reads and writes screening submissions
type SubmissionStore struct {
	db                 *sql.DB
	useChurchDateIndex bool
}

// NewSubmissionStore creates a store. useChurchDateIndex enables the
// (church_id, submitted_at) access path for church + date queries.
func NewSubmissionStore(db *sql.DB, useChurchDateIndex bool) *SubmissionStore {
	return &SubmissionStore{db: db, useChurchDateIndex: useChurchDateIndex}
}

// Create inserts a new submission
func (s *SubmissionStore) Create(ctx context.Context, sub *models.Submission) error {
	recs, err := marshalNullable(sub.Recommendations)
	if err != nil {
		return err
	}
	device, err := json.Marshal(sub.DeviceInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal device info: %w", err)
	}
	network, err := json.Marshal(sub.NetworkInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal network info: %w", err)
	}
	signals, err := marshalNullable(sub.FraudSignals)
	if err != nil {
		return err
	}

	query := `INSERT INTO submissions (` + submissionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		sub.ID, sub.SubmittedAt, sub.UpdatedAt, sub.FirstName, sub.LastName, sub.DateOfBirth, sub.Phone, sub.Email,
		sub.ChurchID, sub.Consent, sub.FamilyHistoryDiabetes, sub.FamilyHistoryHypertension, sub.FamilyHistoryDementia,
		sub.NerveSymptoms, sub.Sex, sub.InsuranceType, sub.PhotoKey, sub.EstimatedBMI, sub.BMICategory, sub.EstimatedAge,
		sub.EstimatedGender, sub.HealthRiskLevel, sub.HealthRiskScore, recs, sub.FollowUpStatus,
		sub.FollowUpNotes, sub.FollowUpDate, device, network, sub.Fingerprint, sub.SessionID, signals,
	)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	return nil
}

// Get returns one submission by id
func (s *SubmissionStore) Get(ctx context.Context, id string) (*models.Submission, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+submissionColumns+" FROM submissions WHERE id = ?", id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return sub, nil
}

// UpdateFollowUp applies a sparse follow-up update. Only supplied fields are
// written; an empty update is rejected before touching the database.
func (s *SubmissionStore) UpdateFollowUp(ctx context.Context, id string, u models.FollowUpUpdate) error {
	var (
		sets []string
		args []interface{}
	)
	if u.FollowUpStatus != nil {
		sets = append(sets, "follow_up_status = ?")
		args = append(args, *u.FollowUpStatus)
	}
	if u.FollowUpNotes != nil {
		sets = append(sets, "follow_up_notes = ?")
		args = append(args, *u.FollowUpNotes)
	}
	if u.FollowUpDate != nil {
		sets = append(sets, "follow_up_date = ?")
		args = append(args, nullIfEmpty(*u.FollowUpDate))
	}
	if len(sets) == 0 {
		return ErrNoUpdateFields
	}

	query := "UPDATE submissions SET " + strings.Join(sets, ", ") + ", updated_at = CURRENT_TIMESTAMP(3) WHERE id = ?"
	args = append(args, id)

	return s.execOne(ctx, query, args...)
}

func (s *SubmissionStore) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UsesIndex reports whether a filter is served by the church/date index
func (s *SubmissionStore) UsesIndex(f models.SubmissionFilter) bool {
	return s.useChurchDateIndex && f.ChurchID != "" && (f.StartDate != nil || f.EndDate != nil)
}

// buildQuery returns the SQL for one page. limit is passed through as given.
func (s *SubmissionStore) buildQuery(f models.SubmissionFilter, cursor *LastKey, limit int) (string, []interface{}) {
	indexed := s.UsesIndex(f)

	var (
		where []string
		args  []interface{}
	)
	if f.ChurchID != "" {
		where = append(where, "church_id = ?")
		args = append(args, f.ChurchID)
	}
	if f.StartDate != nil {
		where = append(where, "submitted_at >= ?")
		args = append(args, *f.StartDate)
	}
	if f.EndDate != nil {
		where = append(where, "submitted_at <= ?")
		args = append(args, *f.EndDate)
	}
	if len(f.RiskLevels) > 0 {
		where = append(where, "health_risk_level IN ("+placeholders(len(f.RiskLevels))+")")
		for _, l := range f.RiskLevels {
			args = append(args, l)
		}
	}
	if len(f.FollowUpStatuses) > 0 {
		where = append(where, "follow_up_status IN ("+placeholders(len(f.FollowUpStatuses))+")")
		for _, st := range f.FollowUpStatuses {
			args = append(args, st)
		}
	}

	from := "submissions"
	order := "ORDER BY id ASC"
	if indexed {
		from = "submissions FORCE INDEX (" + churchDateIndex + ")"
		order = "ORDER BY submitted_at DESC, id DESC"
		if cursor != nil && cursor.SubmittedAt != nil {
			where = append(where, "(submitted_at < ? OR (submitted_at = ? AND id < ?))")
			args = append(args, *cursor.SubmittedAt, *cursor.SubmittedAt, cursor.ID)
		}
	} else if cursor != nil {
		where = append(where, "id > ?")
		args = append(args, cursor.ID)
	}

	query := "SELECT " + submissionColumns + " FROM " + from
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " " + order + " LIMIT ?"
	args = append(args, limit)
	return query, args
}

// Query returns one page of submissions matching f. The search term is
// applied after the page is read, and results come back newest first.
func (s *SubmissionStore) Query(ctx context.Context, f models.SubmissionFilter) (*models.SubmissionPage, error) {
	pageSize := ClampPageSize(f.PageSize)
	indexed := s.UsesIndex(f)

	query, args := s.buildQuery(f, DecodeCursor(f.Cursor), pageSize+1)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var subs []models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read submissions: %w", err)
	}

	page := &models.SubmissionPage{}
	if len(subs) > pageSize {
		subs = subs[:pageSize]
		last := subs[pageSize-1]
		key := &LastKey{ID: last.ID}
		if indexed {
			at := last.SubmittedAt
			key.ChurchID = last.ChurchID
			key.SubmittedAt = &at
		}
		page.NextCursor = EncodeCursor(key)
	}

	subs = FilterBySearch(subs, f.SearchTerm)
	SortNewestFirst(subs)
	if subs == nil {
		subs = []models.Submission{}
	}
	page.Items = subs
	page.Count = len(subs)
	return page, nil
}

// ListAll walks every page matching f, stopping after limit rows
func (s *SubmissionStore) ListAll(ctx context.Context, f models.SubmissionFilter, limit int) ([]models.Submission, error) {
	f.PageSize = MaxPageSize
	f.Cursor = ""

	var all []models.Submission
	for {
		page, err := s.Query(ctx, f)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.NextCursor == "" || (limit > 0 && len(all) >= limit) {
			break
		}
		f.Cursor = page.NextCursor
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	SortNewestFirst(all)
	return all, nil
}

// Stats counts submissions by risk level and follow-up status
func (s *SubmissionStore) Stats(ctx context.Context, churchID string) (*models.SubmissionStats, error) {
	query := "SELECT health_risk_level, follow_up_status, COUNT(*) FROM submissions"
	var args []interface{}
	if churchID != "" {
		query += " WHERE church_id = ?"
		args = append(args, churchID)
	}
	query += " GROUP BY health_risk_level, follow_up_status"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	stats := &models.SubmissionStats{
		ByRiskLevel:      make(map[string]int),
		ByFollowUpStatus: make(map[string]int),
	}
	for rows.Next() {
		var (
			level  sql.NullString
			status string
			count  int
		)
		if err := rows.Scan(&level, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats.Total += count
		stats.ByFollowUpStatus[status] += count
		if level.Valid {
			stats.ByRiskLevel[level.String] += count
		} else {
			stats.AnalysisMissing += count
		}
	}
	return stats, rows.Err()
}

// FilterBySearch keeps submissions whose name, email, phone or id contain
// term, ignoring case. A numeric term also matches phones regardless of
// punctuation.
func FilterBySearch(subs []models.Submission, term string) []models.Submission {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return subs
	}
	digits := ""
	if strings.Trim(term, "0123456789 ()-.+") == "" {
		digits = onlyDigits(term)
	}
	return lo.Filter(subs, func(s models.Submission, _ int) bool {
		fields := []string{s.FirstName, s.LastName, s.FullName(), s.Email, s.Phone, s.ID}
		if lo.SomeBy(fields, func(v string) bool { return strings.Contains(strings.ToLower(v), term) }) {
			return true
		}
		return digits != "" && strings.Contains(onlyDigits(s.Phone), digits)
	})
}

// SortNewestFirst orders by submission time descending, then id
func SortNewestFirst(subs []models.Submission) {
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].SubmittedAt.Equal(subs[j].SubmittedAt) {
			return subs[i].ID > subs[j].ID
		}
		return subs[i].SubmittedAt.After(subs[j].SubmittedAt)
	})
}

// ClampPageSize applies the default and bounds the size to 1..MaxPageSize
func ClampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	}
	return n
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var (
		sub                              models.Submission
		bmi                              sql.NullFloat64
		category, gender, level          sql.NullString
		age, score                       sql.NullInt64
		notes, followDate                sql.NullString
		recs, device, network, signalsJS []byte
	)
	err := row.Scan(
		&sub.ID, &sub.SubmittedAt, &sub.UpdatedAt, &sub.FirstName, &sub.LastName, &sub.DateOfBirth, &sub.Phone, &sub.Email,
		&sub.ChurchID, &sub.Consent, &sub.FamilyHistoryDiabetes, &sub.FamilyHistoryHypertension, &sub.FamilyHistoryDementia,
		&sub.NerveSymptoms, &sub.Sex, &sub.InsuranceType, &sub.PhotoKey, &bmi, &category, &age,
		&gender, &level, &score, &recs, &sub.FollowUpStatus,
		&notes, &followDate, &device, &network, &sub.Fingerprint, &sub.SessionID, &signalsJS,
	)
	if err != nil {
		return nil, err
	}

	if bmi.Valid {
		sub.EstimatedBMI = &bmi.Float64
	}
	if age.Valid {
		v := int(age.Int64)
		sub.EstimatedAge = &v
	}
	if score.Valid {
		v := int(score.Int64)
		sub.HealthRiskScore = &v
	}
	sub.BMICategory = stringPtr(category)
	sub.EstimatedGender = stringPtr(gender)
	sub.HealthRiskLevel = stringPtr(level)
	sub.FollowUpNotes = stringPtr(notes)
	sub.FollowUpDate = stringPtr(followDate)

	if err := unmarshalOptional(recs, &sub.Recommendations); err != nil {
		return nil, err
	}
	if err := unmarshalOptional(device, &sub.DeviceInfo); err != nil {
		return nil, err
	}
	if err := unmarshalOptional(network, &sub.NetworkInfo); err != nil {
		return nil, err
	}
	if err := unmarshalOptional(signalsJS, &sub.FraudSignals); err != nil {
		return nil, err
	}
	return &sub, nil
}

func marshalNullable(v []string) (interface{}, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal list: %w", err)
	}
	return b, nil
}

func unmarshalOptional(b []byte, dst interface{}) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("failed to decode json column: %w", err)
	}
	return nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
