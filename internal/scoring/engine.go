// Package scoring applies the ordered fraud rules to extracted documents
// and aggregates per-document results into submission decisions.
package scoring

import (
	"context"
	"log/slog"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/extract"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/similarity"
)

// nameMatchThreshold is the minimum similarity ratio accepted by the name
// comparison rule.
const nameMatchThreshold = 0.6

// Engine scores one document at a time. The store is read-only here;
// persisting the outcome is the caller's responsibility, which keeps scoring
// a pure function of (text, declared identity, store snapshot).
type Engine struct {
	store  domain.Store
	cache  domain.Cache
	rules  *rules.Engine
	logger *slog.Logger
}

// NewEngine creates a scoring engine. cache and ruleEngine may be nil;
// scoring then skips blacklist-hit caching and custom rules respectively.
func NewEngine(store domain.Store, cache domain.Cache, ruleEngine *rules.Engine, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		cache:  cache,
		rules:  ruleEngine,
		logger: logger,
	}
}

// ScoreDocument runs the full per-document pipeline: extraction,
// classification, identity comparison rules, custom risk rules and the
// cross-reference checks. It returns the score result plus any AML alerts
// raised. Store failures during cross-reference are hard errors; everything
// upstream of the store degrades to score adjustments instead of failing.
func (e *Engine) ScoreDocument(ctx context.Context, rawText string, declared domain.DeclaredIdentity) (*domain.DocumentScoreResult, []domain.AmlAlert, error) {
	fields, score, reasons := extract.Extract(rawText)

	result := &domain.DocumentScoreResult{
		ExtractedFields: fields,
		Reasons:         reasons,
	}

	score = e.applyNameRule(result, declared, score)
	score = applyDOBRule(result, declared, score)
	score = applyGenderRule(result, declared, score)
	score = e.applyCustomRules(ctx, result, score)

	alerts, score, err := e.crossReference(ctx, result, score)
	if err != nil {
		return nil, nil, err
	}

	result.FraudScore = score
	result.RiskLevel = domain.DeriveRiskLevel(score)

	e.logger.Debug("document scored",
		"docType", result.DocumentType,
		"fraudScore", result.FraudScore,
		"riskLevel", result.RiskLevel,
		"alerts", len(alerts))

	return result, alerts, nil
}

// applyNameRule compares the extracted name against the declared one.
// Below the threshold the score rises by 25; at or above it the document
// earns a small trust bonus, floored at zero. An absent extracted name
// skips the rule with matchRatio pinned to 0.0.
func (e *Engine) applyNameRule(result *domain.DocumentScoreResult, declared domain.DeclaredIdentity, score int) int {
	if result.Name == "" || declared.Name == "" {
		result.MatchRatio = 0.0
		return score
	}

	ratio := similarity.Ratio(result.Name, declared.Name)
	result.MatchRatio = ratio

	if ratio < nameMatchThreshold {
		result.Reasons = append(result.Reasons, domain.ReasonNameSimilarityLow)
		return score + 25
	}
	return max(0, score-5)
}

// applyDOBRule runs only when the user declared a DOB. A differing
// extracted DOB costs 25, a missing one costs 10.
func applyDOBRule(result *domain.DocumentScoreResult, declared domain.DeclaredIdentity, score int) int {
	if declared.DateOfBirth == "" {
		return score
	}
	if result.DateOfBirth == "" {
		result.Reasons = append(result.Reasons, domain.ReasonDOBNotFound)
		return score + 10
	}
	if result.DateOfBirth != extract.NormalizeDate(declared.DateOfBirth) {
		result.Reasons = append(result.Reasons, domain.ReasonDOBMismatch)
		return score + 25
	}
	return score
}

// applyGenderRule runs only when both sides are present; comparison is
// case-insensitive.
func applyGenderRule(result *domain.DocumentScoreResult, declared domain.DeclaredIdentity, score int) int {
	if declared.Gender == "" || result.Gender == "" {
		return score
	}
	if !strings.EqualFold(result.Gender, declared.Gender) {
		result.Reasons = append(result.Reasons, domain.ReasonGenderMismatch)
		return score + 10
	}
	return score
}

// applyCustomRules evaluates the operator-defined CEL rules against the
// running score. Rule evaluation errors are logged, never fatal.
func (e *Engine) applyCustomRules(ctx context.Context, result *domain.DocumentScoreResult, score int) int {
	if e.rules == nil || e.rules.RulesCount() == 0 {
		return score
	}

	outcomes := e.rules.EvaluateAll(ctx, &rules.EvaluateInput{
		DocType:     result.DocumentType,
		Number:      result.Number,
		FraudScore:  score,
		MatchRatio:  result.MatchRatio,
		NameFound:   result.Name != "",
		DOBFound:    result.DateOfBirth != "",
		GenderFound: result.Gender != "",
	})
	for _, out := range outcomes {
		if out.Err != "" {
			e.logger.Warn("risk rule failed", "ruleId", out.RuleID, "err", out.Err)
			continue
		}
		if out.Delta == 0 {
			continue
		}
		score += out.Delta
		if score < 0 {
			score = 0
		}
		if out.Reason != "" {
			result.Reasons = append(result.Reasons, out.Reason)
		}
	}
	return score
}
