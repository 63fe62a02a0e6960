package scoring

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func doc(score int, reasons ...string) domain.DocumentScoreResult {
	return domain.DocumentScoreResult{
		FraudScore: score,
		RiskLevel:  domain.DeriveRiskLevel(score),
		Reasons:    reasons,
	}
}

func TestAggregateOverallScore(t *testing.T) {
	tests := []struct {
		name       string
		scores     []int
		wantScore  int
		wantLevel  domain.RiskLevel
		wantStatus domain.FinalStatus
	}{
		{"single low", []int{5}, 5, domain.RiskLow, domain.StatusAutoPass},
		{"mean rounds half up", []int{5, 10}, 8, domain.RiskLow, domain.StatusAutoPass},
		{"exact mean", []int{10, 20}, 15, domain.RiskLow, domain.StatusAutoPass},
		{"medium reviews", []int{30, 40}, 35, domain.RiskMedium, domain.StatusReview},
		{"boundary 30 is medium", []int{30}, 30, domain.RiskMedium, domain.StatusReview},
		{"boundary 70 is high", []int{70}, 70, domain.RiskHigh, domain.StatusFlagged},
		{"high flags", []int{80, 80}, 80, domain.RiskHigh, domain.StatusFlagged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := make([]domain.DocumentScoreResult, len(tt.scores))
			for i, s := range tt.scores {
				docs[i] = doc(s)
			}
			rec := Aggregate(domain.DeclaredIdentity{}, docs, nil)

			if rec.OverallFraudScore != tt.wantScore {
				t.Errorf("OverallFraudScore = %d, want %d", rec.OverallFraudScore, tt.wantScore)
			}
			if rec.OverallRiskLevel != tt.wantLevel {
				t.Errorf("OverallRiskLevel = %s, want %s", rec.OverallRiskLevel, tt.wantLevel)
			}
			if rec.FinalStatus != tt.wantStatus {
				t.Errorf("FinalStatus = %s, want %s", rec.FinalStatus, tt.wantStatus)
			}
		})
	}
}

func TestAggregateAlertForcesFlagged(t *testing.T) {
	alerts := []domain.AmlAlert{{Type: domain.AlertTypeDuplicate, Number: "1234 5678 9012"}}

	rec := Aggregate(domain.DeclaredIdentity{}, []domain.DocumentScoreResult{doc(5)}, alerts)
	if rec.FinalStatus != domain.StatusFlagged {
		t.Errorf("FinalStatus = %s, want Flagged despite Low risk", rec.FinalStatus)
	}
	if rec.OverallRiskLevel != domain.RiskLow {
		t.Errorf("OverallRiskLevel = %s, want Low", rec.OverallRiskLevel)
	}
	if !rec.IsValid {
		t.Error("IsValid should track risk level, not alerts")
	}
}

func TestAggregateFlaggedOverridesReview(t *testing.T) {
	alerts := []domain.AmlAlert{{Type: domain.AlertTypeBlacklisted, Number: "ABCDE1234F"}}

	rec := Aggregate(domain.DeclaredIdentity{}, []domain.DocumentScoreResult{doc(45)}, alerts)
	if rec.FinalStatus != domain.StatusFlagged {
		t.Errorf("FinalStatus = %s, want Flagged over Review", rec.FinalStatus)
	}
}

func TestAggregateDedupsReasons(t *testing.T) {
	docs := []domain.DocumentScoreResult{
		doc(80, domain.ReasonNotRecognized, domain.ReasonDOBNotFound),
		doc(80, domain.ReasonNotRecognized, domain.ReasonGenderMismatch),
	}
	rec := Aggregate(domain.DeclaredIdentity{}, docs, nil)

	want := []string{domain.ReasonNotRecognized, domain.ReasonDOBNotFound, domain.ReasonGenderMismatch}
	if len(rec.Reasons) != len(want) {
		t.Fatalf("Reasons = %v, want %v", rec.Reasons, want)
	}
	for i := range want {
		if rec.Reasons[i] != want[i] {
			t.Errorf("Reasons[%d] = %q, want %q", i, rec.Reasons[i], want[i])
		}
	}
}

func TestAggregateRecordShape(t *testing.T) {
	declared := domain.DeclaredIdentity{Name: "Rahul Kumar", DateOfBirth: "15/08/1990", Gender: "Male"}
	rec := Aggregate(declared, []domain.DocumentScoreResult{doc(5)}, nil)

	if rec.ID == "" {
		t.Error("ID not assigned")
	}
	if rec.UserName != declared.Name || rec.UserDOB != declared.DateOfBirth || rec.UserGender != declared.Gender {
		t.Errorf("declared identity not carried: %+v", rec)
	}
	if rec.Status != domain.LifecyclePending {
		t.Errorf("Status = %s, want Pending", rec.Status)
	}
	if rec.CreatedAt.IsZero() || !rec.CreatedAt.Equal(rec.UpdatedAt) {
		t.Errorf("timestamps: created %v updated %v", rec.CreatedAt, rec.UpdatedAt)
	}
}
