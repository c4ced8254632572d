package access

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

type ruleRow struct {
	Position int            `db:"position"`
	UserID   sql.NullInt64  `db:"user_id"`
	ChatID   sql.NullInt64  `db:"chat_id"`
	Username sql.NullString `db:"username"`
	Decision string         `db:"decision"`
}

func (r ruleRow) toRule() (Rule, error) {
	decision, err := ParseDecision(r.Decision)
	if err != nil {
		return Rule{}, fmt.Errorf("rule at position %d: %w", r.Position, err)
	}

	return Rule{
		Matcher:  r.matcher(),
		Decision: decision,
	}, nil
}

// matcher keys off NULL rather than zero values, so a stored user_id of 0 stays a user matcher.
func (r ruleRow) matcher() Matcher {
	switch {
	case r.UserID.Valid:
		return UserID(r.UserID.Int64)
	case r.ChatID.Valid:
		return ChatID(r.ChatID.Int64)
	case r.Username.Valid:
		return Username(r.Username.String)
	default:
		return Any()
	}
}

// SQLRuleSource loads ordered access rules from the access_rules table.
type SQLRuleSource struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewSQLRuleSource creates a rule source over db.
func NewSQLRuleSource(db *sqlx.DB, log *slog.Logger) *SQLRuleSource {
	if log == nil {
		log = slog.Default()
	}

	return &SQLRuleSource{db: db, log: log}
}

// Load returns the enabled rules ordered by position.
func (s *SQLRuleSource) Load(ctx context.Context) ([]Rule, error) {
	const query = `
		SELECT position, user_id, chat_id, username, decision
		FROM access_rules
		WHERE enabled
		ORDER BY position, id
	`

	var rows []ruleRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		s.log.Error("failed to load access rules", slog.Any("error", err))
		return nil, fmt.Errorf("select access rules: %w", err)
	}

	rules := make([]Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toRule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	s.log.Info("access rules loaded", slog.Int("count", len(rules)))
	return rules, nil
}
