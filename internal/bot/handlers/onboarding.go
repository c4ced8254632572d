// Package handlers contains the bot's chain entries and dialogue states.
package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Proton-105/himera-dispatch/internal/dialogue"
	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	"github.com/Proton-105/himera-dispatch/internal/session"
	"github.com/Proton-105/himera-dispatch/internal/update"
)

// Onboarding dialogue states.
const (
	StateIdle         = "idle"
	StateAwaitingName = "awaiting_name"
	StateAwaitingAge  = "awaiting_age"
)

// Session keys written by the onboarding dialogue.
const (
	KeyName = "name"
	KeyAge  = "age"
)

const maxAge = 150

// Onboarding builds the dialogue asking a new user for their name and age.
func Onboarding() *dialogue.Table {
	return dialogue.NewTable(StateIdle).
		AddFunc(StateIdle, idle).
		AddFunc(StateAwaitingName, awaitingName).
		AddFunc(StateAwaitingAge, awaitingAge).
		Allow(StateIdle, StateAwaitingName).
		Allow(StateAwaitingName, StateAwaitingAge).
		Allow(StateAwaitingAge)
}

func idle(c *dispatch.Context, upd update.Update) dispatch.Result {
	if !dispatch.OnCommand("start")(upd) {
		return dispatch.Continue()
	}

	if err := dispatch.Reply(c, tr(c).T("onboarding.ask_name")); err != nil {
		return dispatch.Fail(err)
	}
	dialogue.Transition(c, StateAwaitingName)
	return dispatch.Stop()
}

func awaitingName(c *dispatch.Context, upd update.Update) dispatch.Result {
	name := strings.TrimSpace(upd.Text())
	if name == "" || strings.HasPrefix(name, "/") {
		return dispatch.FromError(dispatch.Reply(c, tr(c).T("onboarding.name_invalid")))
	}

	sess, ok := session.From(c)
	if !ok {
		return dispatch.Fail(fmt.Errorf("no session in dialogue state %s", StateAwaitingName))
	}
	if err := sess.Set(KeyName, name); err != nil {
		return dispatch.Fail(err)
	}

	if err := dispatch.Reply(c, tr(c).Tf("onboarding.ask_age", name)); err != nil {
		return dispatch.Fail(err)
	}
	dialogue.Transition(c, StateAwaitingAge)
	return dispatch.Stop()
}

func awaitingAge(c *dispatch.Context, upd update.Update) dispatch.Result {
	age, err := strconv.Atoi(strings.TrimSpace(upd.Text()))
	if err != nil || age <= 0 || age > maxAge {
		return dispatch.FromError(dispatch.Reply(c, tr(c).T("onboarding.age_invalid")))
	}

	sess, ok := session.From(c)
	if !ok {
		return dispatch.Fail(fmt.Errorf("no session in dialogue state %s", StateAwaitingAge))
	}
	if err := sess.Set(KeyAge, age); err != nil {
		return dispatch.Fail(err)
	}

	var name string
	if _, err := sess.Get(KeyName, &name); err != nil {
		return dispatch.Fail(err)
	}

	if err := dispatch.Reply(c, tr(c).Tf("onboarding.done", name, age)); err != nil {
		return dispatch.Fail(err)
	}
	dialogue.Exit(c)
	return dispatch.Stop()
}
