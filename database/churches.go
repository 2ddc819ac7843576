package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"health-screening/models"
)

const churchColumns = `id, name, address, contact_person, contact_email, contact_phone, is_active,
	total_submissions, created_at, updated_at, archived_at`

// ChurchStore manages outreach locations
type ChurchStore struct {
	db *sql.DB
}

// NewChurchStore creates a church store
func NewChurchStore(db *sql.DB) *ChurchStore {
	return &ChurchStore{db: db}
}

// List returns locations ordered by name. Archived ones are included only on request.
func (s *ChurchStore) List(ctx context.Context, includeArchived bool) ([]models.Church, error) {
	query := "SELECT " + churchColumns + " FROM churches"
	if !includeArchived {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list churches: %w", err)
	}
	defer rows.Close()

	churches := []models.Church{}
	for rows.Next() {
		c, err := scanChurch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan church: %w", err)
		}
		churches = append(churches, *c)
	}
	return churches, rows.Err()
}

// Get returns one location
func (s *ChurchStore) Get(ctx context.Context, id string) (*models.Church, error) {
	c, err := scanChurch(s.db.QueryRowContext(ctx, "SELECT "+churchColumns+" FROM churches WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get church: %w", err)
	}
	return c, nil
}

// Create inserts a location
func (s *ChurchStore) Create(ctx context.Context, c *models.Church) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO churches (id, name, address, contact_person, contact_email, contact_phone, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Address, c.ContactPerson, c.ContactEmail, c.ContactPhone, c.IsActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert church: %w", err)
	}
	return nil
}

// Update overwrites the editable fields. Reactivating clears archived_at.
func (s *ChurchStore) Update(ctx context.Context, c *models.Church) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE churches SET name = ?, address = ?, contact_person = ?, contact_email = ?, contact_phone = ?,
		is_active = ?, archived_at = IF(?, NULL, archived_at) WHERE id = ?`,
		c.Name, c.Address, c.ContactPerson, c.ContactEmail, c.ContactPhone, c.IsActive, c.IsActive, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update church: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete hard-deletes a location only when no submission references it;
// otherwise the location is archived so history stays intact.
func (s *ChurchStore) Delete(ctx context.Context, id string) (*models.ChurchDeleteResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var found string
	err = tx.QueryRowContext(ctx, "SELECT id FROM churches WHERE id = ? FOR UPDATE", id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock church: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM submissions WHERE church_id = ?", id).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}

	result := &models.ChurchDeleteResult{ID: id, Submissions: count}
	if count == 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM churches WHERE id = ?", id); err != nil {
			return nil, fmt.Errorf("failed to delete church: %w", err)
		}
		result.Deleted = true
	} else {
		if _, err := tx.ExecContext(ctx,
			"UPDATE churches SET is_active = FALSE, archived_at = ? WHERE id = ?", time.Now().UTC(), id); err != nil {
			return nil, fmt.Errorf("failed to archive church: %w", err)
		}
		result.Archived = true
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return result, nil
}

// IncrementSubmissionCount bumps the denormalized counter
func (s *ChurchStore) IncrementSubmissionCount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE churches SET total_submissions = total_submissions + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to increment submission count: %w", err)
	}
	return nil
}

func scanChurch(row rowScanner) (*models.Church, error) {
	var (
		c        models.Church
		archived sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Name, &c.Address, &c.ContactPerson, &c.ContactEmail, &c.ContactPhone,
		&c.IsActive, &c.TotalSubmissions, &c.CreatedAt, &c.UpdatedAt, &archived)
	if err != nil {
		return nil, err
	}
	if archived.Valid {
		c.ArchivedAt = &archived.Time
	}
	return &c, nil
}
