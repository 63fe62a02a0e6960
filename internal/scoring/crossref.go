package scoring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// blacklistHitTTL bounds how long a confirmed blacklist hit is served from
// cache. Only positive hits are cached so a newly added entry takes effect
// immediately.
const blacklistHitTTL = 5 * time.Minute

// crossReference runs the blacklist and duplicate checks for a document
// with an extracted number. Both checks hit the persisted store; store
// failures propagate as errors because a submission must never be scored
// against a partial cross-reference view.
func (e *Engine) crossReference(ctx context.Context, result *domain.DocumentScoreResult, score int) ([]domain.AmlAlert, int, error) {
	if result.Number == "" {
		return nil, score, nil
	}

	var alerts []domain.AmlAlert

	hit, err := e.isBlacklisted(ctx, result.Number)
	if err != nil {
		return nil, 0, fmt.Errorf("blacklist check for %q: %w", result.Number, err)
	}
	if hit {
		score += 50
		result.Reasons = append(result.Reasons, domain.ReasonBlacklisted)
		alerts = append(alerts, domain.AmlAlert{
			Type:   domain.AlertTypeBlacklisted,
			Number: result.Number,
			Reason: domain.ReasonBlacklisted,
		})
	}

	matches, err := e.store.FindByDocumentNumber(ctx, result.Number)
	if err != nil {
		return nil, 0, fmt.Errorf("duplicate check for %q: %w", result.Number, err)
	}
	if len(matches) > 0 {
		score += 40
		result.Reasons = append(result.Reasons, domain.ReasonDuplicate)

		ids := make([]string, 0, domain.MaxDuplicateMatches)
		for _, m := range matches {
			if len(ids) == domain.MaxDuplicateMatches {
				break
			}
			ids = append(ids, m.SubmissionID)
		}
		alerts = append(alerts, domain.AmlAlert{
			Type:    domain.AlertTypeDuplicate,
			Number:  result.Number,
			Reason:  domain.ReasonDuplicate,
			Matches: ids,
		})
	}

	return alerts, score, nil
}

// isBlacklisted checks the number against the blacklist, serving repeated
// hits from cache when one is wired.
func (e *Engine) isBlacklisted(ctx context.Context, number string) (bool, error) {
	key := BlacklistCacheKey(number)

	if e.cache != nil {
		if v, err := e.cache.Get(ctx, key); err == nil && v != nil {
			return true, nil
		}
	}

	entry, err := e.store.FindBlacklistEntry(ctx, number)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, []byte(entry.ID), blacklistHitTTL); err != nil {
			e.logger.Warn("blacklist cache set failed", "err", err)
		}
	}
	return true, nil
}

// BlacklistCacheKey is the cache key for a confirmed blacklist hit.
// Exposed so the blacklist admin endpoints can invalidate on delete.
func BlacklistCacheKey(number string) string {
	return "kestrel:blacklist:" + strings.ToUpper(number)
}
