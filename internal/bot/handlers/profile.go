package handlers

import (
	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	"github.com/Proton-105/himera-dispatch/internal/session"
	"github.com/Proton-105/himera-dispatch/internal/update"
)

// NewProfileHandler shows what onboarding stored for the scope.
func NewProfileHandler(store session.Store) dispatch.Handler {
	return dispatch.Func("profile", func(c *dispatch.Context, upd update.Update) dispatch.Result {
		sess, err := session.Load(c, store, upd.Scope())
		if err != nil {
			return dispatch.Fail(err)
		}

		var (
			name string
			age  int
		)
		hasName, err := sess.Get(KeyName, &name)
		if err != nil {
			return dispatch.Fail(err)
		}
		if _, err := sess.Get(KeyAge, &age); err != nil {
			return dispatch.Fail(err)
		}

		if !hasName {
			return dispatch.FromError(dispatch.Reply(c, tr(c).T("profile.empty")))
		}
		return dispatch.FromError(dispatch.Reply(c, tr(c).Tf("profile.show", name, age)))
	})
}
