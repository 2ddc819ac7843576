package database

import (
	"database/sql"
	"fmt"

	"github.com/apex/log"
)

// Schema contains the base tables. The database itself is created by the
// deployment; tables are created idempotently on startup.
const Schema = `
CREATE TABLE IF NOT EXISTS churches (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    address VARCHAR(500) NOT NULL DEFAULT '',
    contact_person VARCHAR(200) NOT NULL DEFAULT '',
    contact_email VARCHAR(254) NOT NULL DEFAULT '',
    contact_phone VARCHAR(32) NOT NULL DEFAULT '',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    total_submissions INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    updated_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
    archived_at TIMESTAMP(3) NULL,
    INDEX idx_active (is_active)
);

CREATE TABLE IF NOT EXISTS submissions (
    id VARCHAR(36) PRIMARY KEY,
    submitted_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    updated_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    first_name VARCHAR(100) NOT NULL,
    last_name VARCHAR(100) NOT NULL,
    date_of_birth CHAR(10) NOT NULL,
    phone VARCHAR(32) NOT NULL,
    email VARCHAR(254) NOT NULL DEFAULT '',
    church_id VARCHAR(64) NOT NULL,
    consent BOOLEAN NOT NULL,
    family_history_diabetes BOOLEAN NOT NULL DEFAULT FALSE,
    family_history_hypertension BOOLEAN NOT NULL DEFAULT FALSE,
    family_history_dementia BOOLEAN NOT NULL DEFAULT FALSE,
    nerve_symptoms BOOLEAN NOT NULL DEFAULT FALSE,
    sex VARCHAR(32) NOT NULL DEFAULT '',
    insurance_type VARCHAR(32) NOT NULL DEFAULT '',
    photo_key VARCHAR(512) NOT NULL,
    estimated_bmi DECIMAL(5,2) NULL,
    bmi_category VARCHAR(16) NULL,
    estimated_age INT NULL,
    estimated_gender VARCHAR(16) NULL,
    health_risk_level VARCHAR(16) NULL,
    health_risk_score INT NULL,
    recommendations JSON NULL,
    follow_up_status VARCHAR(16) NOT NULL DEFAULT 'Pending',
    follow_up_notes TEXT NULL,
    follow_up_date CHAR(10) NULL,
    device_info JSON NULL,
    network_info JSON NULL,
    fingerprint VARCHAR(64) NOT NULL DEFAULT '',
    session_id VARCHAR(64) NOT NULL DEFAULT '',
    fraud_signals JSON NULL,
    INDEX idx_church_submitted (church_id, submitted_at),
    INDEX idx_submitted (submitted_at),
    INDEX idx_risk_level (health_risk_level),
    INDEX idx_follow_up (follow_up_status)
);

CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(36) PRIMARY KEY,
    email VARCHAR(254) NOT NULL,
    password_hash VARCHAR(256) NOT NULL,
    name VARCHAR(200) NOT NULL DEFAULT '',
    role VARCHAR(32) NOT NULL DEFAULT 'admin',
    created_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    last_login_at TIMESTAMP(3) NULL,
    UNIQUE KEY unique_email (email)
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
    jti VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(36) NOT NULL,
    token_hash CHAR(64) NOT NULL,
    expires_at TIMESTAMP(3) NOT NULL,
    revoked_at TIMESTAMP(3) NULL,
    created_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    INDEX idx_user (user_id),
    INDEX idx_expires (expires_at)
);

CREATE TABLE IF NOT EXISTS schema_migrations (
    version INT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      string
}

// Migrations list all database migrations applied after Schema
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "add_fraud_signals_to_submissions",
		Up: `
			SET @preparedStatement = (SELECT IF(
				(SELECT COUNT(*) FROM INFORMATION_SCHEMA.COLUMNS
				WHERE TABLE_SCHEMA = DATABASE()
				AND TABLE_NAME = 'submissions'
				AND COLUMN_NAME = 'fraud_signals') = 0,
				'ALTER TABLE submissions ADD COLUMN fraud_signals JSON NULL;',
				'SELECT 1;'
			));
			PREPARE alterIfNotExists FROM @preparedStatement;
			EXECUTE alterIfNotExists;
			DEALLOCATE PREPARE alterIfNotExists;
		`,
	},
	{
		Version: 2,
		Name:    "add_archived_at_to_churches",
		Up: `
			SET @preparedStatement = (SELECT IF(
				(SELECT COUNT(*) FROM INFORMATION_SCHEMA.COLUMNS
				WHERE TABLE_SCHEMA = DATABASE()
				AND TABLE_NAME = 'churches'
				AND COLUMN_NAME = 'archived_at') = 0,
				'ALTER TABLE churches ADD COLUMN archived_at TIMESTAMP(3) NULL;',
				'SELECT 1;'
			));
			PREPARE alterIfNotExists FROM @preparedStatement;
			EXECUTE alterIfNotExists;
			DEALLOCATE PREPARE alterIfNotExists;
		`,
	},
}

// InitializeSchema creates the tables and runs migrations
func InitializeSchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("Database schema initialized successfully")
	return nil
}

// RunMigrations applies all pending database migrations
func RunMigrations(db *sql.DB) error {
	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, m := range Migrations {
		if applied[m.Version] {
			continue
		}
		log.Infof("Applying migration %d: %s", m.Version, m.Name)
		if _, err := db.Exec(m.Up); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
		if _, err := db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}
	return nil
}
