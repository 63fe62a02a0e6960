// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// StoreName identifies one of the three logical submission collections.
type StoreName string

const (
	StorePending  StoreName = "pending"
	StoreApproved StoreName = "approved"
	StoreRejected StoreName = "rejected"
)

// DocumentMatch is one hit from a duplicate document-number lookup.
type DocumentMatch struct {
	SubmissionID string    `json:"submissionId"`
	Store        StoreName `json:"store"`
	Number       string    `json:"number"`
}

// Store defines the interface for the persisted record store.
// The scoring pipeline only reads from it; all writes happen at the API
// layer after scoring completes.
type Store interface {
	// Submission operations. InsertSubmission returns the assigned id.
	InsertSubmission(ctx context.Context, store StoreName, rec *SubmissionRecord) (string, error)
	GetSubmission(ctx context.Context, store StoreName, id string) (*SubmissionRecord, error)
	ListSubmissions(ctx context.Context, store StoreName) ([]*SubmissionRecord, error)
	DeleteSubmission(ctx context.Context, store StoreName, id string) error

	// MoveSubmission transfers ownership of a record between stores as one
	// atomic step: the record either moves or stays visible in the source.
	MoveSubmission(ctx context.Context, id string, from, to StoreName) (*SubmissionRecord, error)

	// FindByDocumentNumber does a case-insensitive substring match of the
	// number against document numbers across all three submission stores.
	FindByDocumentNumber(ctx context.Context, number string) ([]DocumentMatch, error)

	// Blacklist operations. FindBlacklistEntry is an exact case-insensitive
	// match on the full number; nil, nil means no hit.
	InsertBlacklistEntry(ctx context.Context, entry *BlacklistEntry) (string, error)
	DeleteBlacklistEntry(ctx context.Context, id string) error
	ListBlacklist(ctx context.Context) ([]*BlacklistEntry, error)
	FindBlacklistEntry(ctx context.Context, number string) (*BlacklistEntry, error)

	// AML alert sets, persisted independently of submissions for audit.
	SaveAlertSet(ctx context.Context, set *AmlAlertSet) (string, error)
	ListAlertSets(ctx context.Context) ([]*AmlAlertSet, error)

	// Custom risk rule configurations.
	SaveRiskRule(ctx context.Context, rule *RiskRule) error
	ListRiskRules(ctx context.Context) ([]*RiskRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for store initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite", "postgres" or "memory"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
