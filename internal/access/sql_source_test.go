package access

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockSource(t *testing.T) (*SQLRuleSource, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSQLRuleSource(sqlx.NewDb(db, "postgres"), log), mock
}

var ruleColumns = []string{"position", "user_id", "chat_id", "username", "decision"}

func TestSQLRuleSource_Load(t *testing.T) {
	source, mock := newMockSource(t)

	mock.ExpectQuery("FROM access_rules").
		WillReturnRows(sqlmock.NewRows(ruleColumns).
			AddRow(1, int64(0), nil, nil, "deny").
			AddRow(2, nil, int64(-100), nil, "allow").
			AddRow(3, nil, nil, "@Admin", "allow").
			AddRow(4, nil, nil, "", "deny").
			AddRow(5, nil, nil, nil, "deny"))

	rules, err := source.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 5)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "user:0", rules[0].Matcher.String())
	assert.Equal(t, "chat:-100", rules[1].Matcher.String())
	assert.Equal(t, "username:admin", rules[2].Matcher.String())
	assert.Equal(t, "any", rules[4].Matcher.String())

	policy := NewPolicy(Allow, rules...)
	// a stored user_id of 0 must not turn into a catch-all deny
	assert.Equal(t, Allow, policy.Evaluate(Principal{UserID: 7, ChatID: -100}))
	assert.Equal(t, Allow, policy.Evaluate(Principal{UserID: 8, Username: "admin"}))
	assert.Equal(t, Deny, policy.Evaluate(Principal{UserID: 9}))
}

func TestSQLRuleSource_LoadErrors(t *testing.T) {
	t.Run("query", func(t *testing.T) {
		source, mock := newMockSource(t)
		mock.ExpectQuery("FROM access_rules").WillReturnError(errors.New("connection reset"))

		_, err := source.Load(context.Background())
		assert.ErrorContains(t, err, "select access rules")
	})

	t.Run("bad decision", func(t *testing.T) {
		source, mock := newMockSource(t)
		mock.ExpectQuery("FROM access_rules").
			WillReturnRows(sqlmock.NewRows(ruleColumns).AddRow(7, int64(1), nil, nil, "maybe"))

		_, err := source.Load(context.Background())
		assert.ErrorContains(t, err, "position 7")
	})
}
