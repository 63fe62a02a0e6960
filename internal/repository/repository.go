// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.Store using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a store based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Store, error) {
	if cfg.Driver == "memory" {
		return NewMemory(), nil
	}

	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const submissionColumns = `id, store, user_name, user_dob, user_gender, documents,
	overall_fraud_score, overall_risk_level, final_status, is_valid,
	aml_alerts, reasons, status, admin_status, created_at, updated_at`

// InsertSubmission stores a record in the named submission store and
// returns the assigned id.
func (r *SQLRepository) InsertSubmission(ctx context.Context, store domain.StoreName, rec *domain.SubmissionRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("%w: submission record is required", domain.ErrInvalidInput)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	documents, _ := json.Marshal(rec.Documents)
	alerts, _ := json.Marshal(rec.AmlAlerts)
	reasons, _ := json.Marshal(rec.Reasons)

	isValid := 0
	if rec.IsValid {
		isValid = 1
	}

	query := `
		INSERT INTO submissions (
			id, store, user_name, user_dob, user_gender, documents, doc_numbers,
			overall_fraud_score, overall_risk_level, final_status, is_valid,
			aml_alerts, reasons, status, admin_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, string(store), rec.UserName, rec.UserDOB, rec.UserGender,
		string(documents), docNumbers(rec),
		rec.OverallFraudScore, string(rec.OverallRiskLevel), string(rec.FinalStatus), isValid,
		string(alerts), string(reasons), string(rec.Status), string(rec.AdminStatus),
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// GetSubmission retrieves one record from the named store.
func (r *SQLRepository) GetSubmission(ctx context.Context, store domain.StoreName, id string) (*domain.SubmissionRecord, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE store = ? AND id = ?`

	rec, err := scanSubmission(r.db.QueryRowContext(ctx, r.rebind(query), string(store), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

// ListSubmissions retrieves all records in the named store, newest first.
func (r *SQLRepository) ListSubmissions(ctx context.Context, store domain.StoreName) ([]*domain.SubmissionRecord, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE store = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), string(store))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.SubmissionRecord
	for rows.Next() {
		rec, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteSubmission removes a record from the named store.
func (r *SQLRepository) DeleteSubmission(ctx context.Context, store domain.StoreName, id string) error {
	query := `DELETE FROM submissions WHERE store = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), string(store), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MoveSubmission transfers a record between stores as one atomic UPDATE
// guarded by the source store; the record either moves fully or remains
// visible in the source.
func (r *SQLRepository) MoveSubmission(ctx context.Context, id string, from, to domain.StoreName) (*domain.SubmissionRecord, error) {
	status := lifecycleFor(to)

	query := `
		UPDATE submissions
		SET store = ?, status = ?, admin_status = ?, updated_at = ?
		WHERE id = ? AND store = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(to), string(status), string(status), time.Now().UTC(),
		id, string(from),
	)
	if err != nil {
		return nil, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, domain.ErrNotFound
	}

	return r.GetSubmission(ctx, to, id)
}

// FindByDocumentNumber matches the number as a case-insensitive substring
// against document numbers across all submission stores.
func (r *SQLRepository) FindByDocumentNumber(ctx context.Context, number string) ([]domain.DocumentMatch, error) {
	if number == "" {
		return nil, fmt.Errorf("%w: document number is required", domain.ErrInvalidInput)
	}
	needle := strings.ToUpper(number)

	query := `SELECT id, store, doc_numbers FROM submissions WHERE doc_numbers LIKE '%' || ? || '%'`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), needle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []domain.DocumentMatch
	for rows.Next() {
		var id, store, numbers string
		if err := rows.Scan(&id, &store, &numbers); err != nil {
			return nil, err
		}
		matches = append(matches, domain.DocumentMatch{
			SubmissionID: id,
			Store:        domain.StoreName(store),
			Number:       matchedNumber(numbers, needle),
		})
	}
	return matches, rows.Err()
}

// InsertBlacklistEntry stores a blocked number and returns the assigned id.
func (r *SQLRepository) InsertBlacklistEntry(ctx context.Context, entry *domain.BlacklistEntry) (string, error) {
	if entry == nil || entry.Number == "" {
		return "", fmt.Errorf("%w: blacklist number is required", domain.ErrInvalidInput)
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO blacklist (id, type, number, created_at) VALUES (?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, entry.Type, entry.Number, entry.CreatedAt)
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}

// DeleteBlacklistEntry removes an entry by id.
func (r *SQLRepository) DeleteBlacklistEntry(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM blacklist WHERE id = ?`), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListBlacklist retrieves all blacklist entries, newest first.
func (r *SQLRepository) ListBlacklist(ctx context.Context) ([]*domain.BlacklistEntry, error) {
	query := `SELECT id, type, number, created_at FROM blacklist ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.BlacklistEntry
	for rows.Next() {
		var e domain.BlacklistEntry
		if err := rows.Scan(&e.ID, &e.Type, &e.Number, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// FindBlacklistEntry does an exact case-insensitive match on the full
// number. nil, nil means no hit.
func (r *SQLRepository) FindBlacklistEntry(ctx context.Context, number string) (*domain.BlacklistEntry, error) {
	query := `SELECT id, type, number, created_at FROM blacklist WHERE UPPER(number) = ? LIMIT 1`

	var e domain.BlacklistEntry
	err := r.db.QueryRowContext(ctx, r.rebind(query), strings.ToUpper(number)).Scan(
		&e.ID, &e.Type, &e.Number, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// SaveAlertSet persists the alerts raised for one submission and returns
// the assigned id.
func (r *SQLRepository) SaveAlertSet(ctx context.Context, set *domain.AmlAlertSet) (string, error) {
	if set == nil || set.SubmissionID == "" {
		return "", fmt.Errorf("%w: submission id is required", domain.ErrInvalidInput)
	}
	if set.ID == "" {
		set.ID = uuid.New().String()
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = time.Now().UTC()
	}

	alerts, _ := json.Marshal(set.Alerts)

	query := `INSERT INTO aml_alert_sets (id, submission_id, alerts, created_at) VALUES (?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		set.ID, set.SubmissionID, string(alerts), set.CreatedAt)
	if err != nil {
		return "", err
	}
	return set.ID, nil
}

// ListAlertSets retrieves all alert sets, newest first.
func (r *SQLRepository) ListAlertSets(ctx context.Context) ([]*domain.AmlAlertSet, error) {
	query := `SELECT id, submission_id, alerts, created_at FROM aml_alert_sets ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sets []*domain.AmlAlertSet
	for rows.Next() {
		var set domain.AmlAlertSet
		var alerts string
		if err := rows.Scan(&set.ID, &set.SubmissionID, &alerts, &set.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(alerts), &set.Alerts)
		sets = append(sets, &set)
	}
	return sets, rows.Err()
}

// SaveRiskRule upserts a custom risk rule definition.
func (r *SQLRepository) SaveRiskRule(ctx context.Context, rule *domain.RiskRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", domain.ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO risk_rules (
			id, name, description, expression, weight, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			weight = excluded.weight,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression,
		rule.Weight, rule.Reason, enabled, now, now,
	)
	return err
}

// ListRiskRules retrieves all rule definitions, enabled or not.
func (r *SQLRepository) ListRiskRules(ctx context.Context) ([]*domain.RiskRule, error) {
	query := `
		SELECT id, name, description, expression, weight, reason, enabled, created_at, updated_at
		FROM risk_rules
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.RiskRule
	for rows.Next() {
		var rule domain.RiskRule
		var enabled int
		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description, &rule.Expression,
			&rule.Weight, &rule.Reason, &enabled, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(s scanner) (*domain.SubmissionRecord, error) {
	var rec domain.SubmissionRecord
	var store, documents, riskLevel, finalStatus, alerts, reasons, status, adminStatus string
	var isValid int

	err := s.Scan(
		&rec.ID, &store, &rec.UserName, &rec.UserDOB, &rec.UserGender, &documents,
		&rec.OverallFraudScore, &riskLevel, &finalStatus, &isValid,
		&alerts, &reasons, &status, &adminStatus, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.OverallRiskLevel = domain.RiskLevel(riskLevel)
	rec.FinalStatus = domain.FinalStatus(finalStatus)
	rec.IsValid = isValid == 1
	rec.Status = domain.LifecycleStatus(status)
	rec.AdminStatus = domain.LifecycleStatus(adminStatus)

	json.Unmarshal([]byte(documents), &rec.Documents)
	if alerts != "" {
		json.Unmarshal([]byte(alerts), &rec.AmlAlerts)
	}
	if reasons != "" {
		json.Unmarshal([]byte(reasons), &rec.Reasons)
	}
	return &rec, nil
}

// docNumbers builds the denormalized uppercase number list for substring
// duplicate lookups, pipe-separated.
func docNumbers(rec *domain.SubmissionRecord) string {
	var nums []string
	for _, d := range rec.Documents {
		if d.Number != "" {
			nums = append(nums, strings.ToUpper(d.Number))
		}
	}
	return strings.Join(nums, "|")
}

// matchedNumber returns the stored number token the needle hit, falling
// back to the needle itself.
func matchedNumber(numbers, needle string) string {
	for _, n := range strings.Split(numbers, "|") {
		if strings.Contains(n, needle) {
			return n
		}
	}
	return needle
}

// lifecycleFor maps a destination store to the lifecycle status a moved
// record takes on.
func lifecycleFor(store domain.StoreName) domain.LifecycleStatus {
	switch store {
	case domain.StoreApproved:
		return domain.LifecycleApproved
	case domain.StoreRejected:
		return domain.LifecycleRejected
	default:
		return domain.LifecyclePending
	}
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
