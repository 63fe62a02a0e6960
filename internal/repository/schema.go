package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

// The three logical submission stores (pending, approved, rejected) share
// one table discriminated by the store column, so admin review is a single
// atomic UPDATE instead of a cross-table delete+insert. doc_numbers is a
// denormalized pipe-separated list of uppercase document numbers kept for
// substring duplicate lookups.
const schemaSubmissions = `
CREATE TABLE IF NOT EXISTS submissions (
    id TEXT PRIMARY KEY,
    store TEXT NOT NULL,
    user_name TEXT NOT NULL,
    user_dob TEXT,
    user_gender TEXT,
    documents TEXT NOT NULL,
    doc_numbers TEXT NOT NULL,
    overall_fraud_score INTEGER NOT NULL,
    overall_risk_level TEXT NOT NULL,
    final_status TEXT NOT NULL,
    is_valid INTEGER NOT NULL,
    aml_alerts TEXT,
    reasons TEXT,
    status TEXT NOT NULL,
    admin_status TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_store ON submissions(store);
CREATE INDEX IF NOT EXISTS idx_submissions_created ON submissions(store, created_at);
`

const schemaBlacklist = `
CREATE TABLE IF NOT EXISTS blacklist (
    id TEXT PRIMARY KEY,
    type TEXT,
    number TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_blacklist_number ON blacklist(number);
`

const schemaAlertSets = `
CREATE TABLE IF NOT EXISTS aml_alert_sets (
    id TEXT PRIMARY KEY,
    submission_id TEXT NOT NULL,
    alerts TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alert_sets_submission ON aml_alert_sets(submission_id);
`

const schemaRiskRules = `
CREATE TABLE IF NOT EXISTS risk_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    reason TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaSubmissions,
		schemaBlacklist,
		schemaAlertSets,
		schemaRiskRules,
	}
}
