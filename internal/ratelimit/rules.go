package ratelimit

import (
	"github.com/samber/lo"

	"github.com/Proton-105/himera-dispatch/pkg/config"
)

// Rules holds the users that bypass rate limiting.
type Rules struct {
	whitelist map[int64]struct{}
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{
		whitelist: lo.SliceToMap(cfg.Whitelist, func(id int64) (int64, struct{}) {
			return id, struct{}{}
		}),
	}
}

// IsWhitelisted returns true if the userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID int64) bool {
	if r == nil {
		return false
	}
	_, ok := r.whitelist[userID]
	return ok
}
