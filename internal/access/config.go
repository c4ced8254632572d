package access

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/Proton-105/himera-dispatch/pkg/config"
)

// FromConfig builds a Policy from the access section, followed by extra rules (e.g. from the database).
func FromConfig(cfg config.AccessConfig, extra ...Rule) (*Policy, error) {
	def := Allow
	if cfg.Default != "" {
		d, err := ParseDecision(cfg.Default)
		if err != nil {
			return nil, err
		}
		def = d
	}

	rules := make([]Rule, 0, len(cfg.Rules)+len(extra))
	for i, rc := range cfg.Rules {
		rule, err := ruleFromConfig(rc)
		if err != nil {
			return nil, fmt.Errorf("access rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}

	return NewPolicy(def, append(rules, extra...)...), nil
}

func ruleFromConfig(rc config.AccessRuleConfig) (Rule, error) {
	decision, err := ParseDecision(rc.Decision)
	if err != nil {
		return Rule{}, err
	}

	set := lo.Count([]bool{rc.UserID != 0, rc.ChatID != 0, rc.Username != ""}, true)
	if set > 1 {
		return Rule{}, fmt.Errorf("only one of user_id, chat_id, username may be set")
	}

	return Rule{Matcher: matcherFor(rc.UserID, rc.ChatID, rc.Username), Decision: decision}, nil
}

func matcherFor(userID, chatID int64, username string) Matcher {
	switch {
	case userID != 0:
		return UserID(userID)
	case chatID != 0:
		return ChatID(chatID)
	case username != "":
		return Username(username)
	default:
		return Any()
	}
}
