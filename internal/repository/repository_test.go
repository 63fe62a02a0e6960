package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newSQLiteStore(t *testing.T) domain.Store {
	t.Helper()
	store, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(number string) *domain.SubmissionRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.SubmissionRecord{
		UserName:   "Rahul Kumar",
		UserDOB:    "15/08/1990",
		UserGender: "Male",
		Documents: []domain.DocumentScoreResult{
			{
				ExtractedFields: domain.ExtractedFields{
					DocumentType: domain.DocTypeAadhaar,
					Number:       number,
					Name:         "Rahul Kumar",
				},
				FraudScore: 5,
				RiskLevel:  domain.RiskLow,
				MatchRatio: 1.0,
			},
		},
		OverallFraudScore: 5,
		OverallRiskLevel:  domain.RiskLow,
		FinalStatus:       domain.StatusAutoPass,
		IsValid:           true,
		Status:            domain.LifecyclePending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// runStoreSuite exercises the domain.Store contract against any backend.
func runStoreSuite(t *testing.T, store domain.Store) {
	ctx := context.Background()

	t.Run("insert and get submission", func(t *testing.T) {
		rec := testRecord("1111 2222 3333")
		id, err := store.InsertSubmission(ctx, domain.StorePending, rec)
		if err != nil {
			t.Fatalf("InsertSubmission: %v", err)
		}
		if id == "" {
			t.Fatal("no id assigned")
		}

		got, err := store.GetSubmission(ctx, domain.StorePending, id)
		if err != nil {
			t.Fatalf("GetSubmission: %v", err)
		}
		if got.UserName != rec.UserName || got.OverallFraudScore != 5 || !got.IsValid {
			t.Errorf("got = %+v", got)
		}
		if len(got.Documents) != 1 || got.Documents[0].Number != "1111 2222 3333" {
			t.Errorf("documents = %+v", got.Documents)
		}
		if got.FinalStatus != domain.StatusAutoPass || got.Status != domain.LifecyclePending {
			t.Errorf("statuses = %s / %s", got.FinalStatus, got.Status)
		}
	})

	t.Run("get missing returns ErrNotFound", func(t *testing.T) {
		_, err := store.GetSubmission(ctx, domain.StorePending, "no-such-id")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("store isolation", func(t *testing.T) {
		rec := testRecord("4444 5555 6666")
		id, err := store.InsertSubmission(ctx, domain.StorePending, rec)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := store.GetSubmission(ctx, domain.StoreApproved, id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("record visible in wrong store, err = %v", err)
		}
	})

	t.Run("move submission", func(t *testing.T) {
		rec := testRecord("7777 8888 9999")
		id, err := store.InsertSubmission(ctx, domain.StorePending, rec)
		if err != nil {
			t.Fatal(err)
		}

		moved, err := store.MoveSubmission(ctx, id, domain.StorePending, domain.StoreApproved)
		if err != nil {
			t.Fatalf("MoveSubmission: %v", err)
		}
		if moved.Status != domain.LifecycleApproved || moved.AdminStatus != domain.LifecycleApproved {
			t.Errorf("lifecycle = %s / %s, want Approved", moved.Status, moved.AdminStatus)
		}

		if _, err := store.GetSubmission(ctx, domain.StorePending, id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("record still in pending, err = %v", err)
		}
		if _, err := store.GetSubmission(ctx, domain.StoreApproved, id); err != nil {
			t.Errorf("record not in approved: %v", err)
		}

		// A second move from pending must fail: the record left.
		if _, err := store.MoveSubmission(ctx, id, domain.StorePending, domain.StoreRejected); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("double move err = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete submission", func(t *testing.T) {
		rec := testRecord("1212 3434 5656")
		id, err := store.InsertSubmission(ctx, domain.StorePending, rec)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.DeleteSubmission(ctx, domain.StorePending, id); err != nil {
			t.Fatalf("DeleteSubmission: %v", err)
		}
		if err := store.DeleteSubmission(ctx, domain.StorePending, id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("second delete err = %v, want ErrNotFound", err)
		}
	})

	t.Run("find by document number", func(t *testing.T) {
		rec := testRecord("9876 5432 1098")
		if _, err := store.InsertSubmission(ctx, domain.StoreApproved, rec); err != nil {
			t.Fatal(err)
		}

		matches, err := store.FindByDocumentNumber(ctx, "9876 5432 1098")
		if err != nil {
			t.Fatalf("FindByDocumentNumber: %v", err)
		}
		if len(matches) != 1 {
			t.Fatalf("matches = %+v, want 1", matches)
		}
		if matches[0].Store != domain.StoreApproved {
			t.Errorf("match store = %s", matches[0].Store)
		}

		// Substring lookups hit too.
		matches, err = store.FindByDocumentNumber(ctx, "5432")
		if err != nil {
			t.Fatal(err)
		}
		if len(matches) == 0 {
			t.Error("substring lookup found nothing")
		}

		if _, err := store.FindByDocumentNumber(ctx, "0000 0000 0000"); err != nil {
			t.Errorf("miss returned error: %v", err)
		}
	})

	t.Run("blacklist", func(t *testing.T) {
		id, err := store.InsertBlacklistEntry(ctx, &domain.BlacklistEntry{
			Type:   "PAN",
			Number: "ABCDE1234F",
		})
		if err != nil {
			t.Fatalf("InsertBlacklistEntry: %v", err)
		}

		hit, err := store.FindBlacklistEntry(ctx, "abcde1234f")
		if err != nil {
			t.Fatalf("FindBlacklistEntry: %v", err)
		}
		if hit == nil || hit.ID != id {
			t.Errorf("case-insensitive lookup = %+v", hit)
		}

		miss, err := store.FindBlacklistEntry(ctx, "ZZZZZ9999Z")
		if err != nil || miss != nil {
			t.Errorf("miss = %+v, %v, want nil, nil", miss, err)
		}

		entries, err := store.ListBlacklist(ctx)
		if err != nil || len(entries) == 0 {
			t.Errorf("ListBlacklist = %+v, %v", entries, err)
		}

		if err := store.DeleteBlacklistEntry(ctx, id); err != nil {
			t.Fatalf("DeleteBlacklistEntry: %v", err)
		}
		if err := store.DeleteBlacklistEntry(ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("second delete err = %v", err)
		}
	})

	t.Run("alert sets", func(t *testing.T) {
		id, err := store.SaveAlertSet(ctx, &domain.AmlAlertSet{
			SubmissionID: "sub-1",
			Alerts: []domain.AmlAlert{
				{Type: domain.AlertTypeBlacklisted, Number: "ABCDE1234F"},
			},
		})
		if err != nil {
			t.Fatalf("SaveAlertSet: %v", err)
		}
		if id == "" {
			t.Fatal("no id assigned")
		}

		sets, err := store.ListAlertSets(ctx)
		if err != nil {
			t.Fatalf("ListAlertSets: %v", err)
		}
		if len(sets) == 0 || sets[0].SubmissionID != "sub-1" {
			t.Errorf("sets = %+v", sets)
		}
		if len(sets[0].Alerts) != 1 || sets[0].Alerts[0].Type != domain.AlertTypeBlacklisted {
			t.Errorf("alerts = %+v", sets[0].Alerts)
		}
	})

	t.Run("risk rules upsert", func(t *testing.T) {
		rule := &domain.RiskRule{
			ID:         "rr-1",
			Name:       "unknown penalty",
			Expression: `doc_type == "Unknown"`,
			Weight:     15,
			Enabled:    true,
		}
		if err := store.SaveRiskRule(ctx, rule); err != nil {
			t.Fatalf("SaveRiskRule: %v", err)
		}

		rule.Weight = 20
		if err := store.SaveRiskRule(ctx, rule); err != nil {
			t.Fatalf("SaveRiskRule upsert: %v", err)
		}

		rules, err := store.ListRiskRules(ctx)
		if err != nil {
			t.Fatalf("ListRiskRules: %v", err)
		}
		if len(rules) != 1 || rules[0].Weight != 20 {
			t.Errorf("rules = %+v", rules)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := store.Ping(ctx); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, newSQLiteStore(t))
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemory())
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "oracle"}); err == nil {
		t.Fatal("unknown driver accepted")
	}
}
