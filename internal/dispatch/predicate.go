package dispatch

import (
	"strings"

	"github.com/Proton-105/himera-dispatch/internal/update"
)

// Predicate decides whether a chain entry applies to an update. A false predicate skips the
// entry without evaluating it.
type Predicate func(upd update.Update) bool

// OnKind matches updates whose payload is one of kinds.
func OnKind(kinds ...update.Kind) Predicate {
	return func(upd update.Update) bool {
		k := upd.Kind()
		for _, want := range kinds {
			if k == want {
				return true
			}
		}
		return false
	}
}

// OnCommand matches messages carrying one of cmds, written with or without the leading slash.
// "/start", "/start@my_bot" and "/start payload" all match "start".
func OnCommand(cmds ...string) Predicate {
	return func(upd update.Update) bool {
		if upd.Kind() != update.KindMessage {
			return false
		}

		name, ok := commandName(upd.Text())
		if !ok {
			return false
		}

		for _, cmd := range cmds {
			if strings.EqualFold(strings.TrimPrefix(cmd, "/"), name) {
				return true
			}
		}
		return false
	}
}

// OnCallbackPrefix matches callback queries whose data starts with prefix.
func OnCallbackPrefix(prefix string) Predicate {
	return func(upd update.Update) bool {
		cb, ok := upd.Payload.(update.Callback)
		return ok && strings.HasPrefix(cb.Data, prefix)
	}
}

// OnText matches updates carrying non-empty text that is not a command.
func OnText() Predicate {
	return func(upd update.Update) bool {
		text := upd.Text()
		if text == "" || upd.Kind() == update.KindCallback {
			return false
		}
		_, isCommand := commandName(text)
		return !isCommand
	}
}

// Not negates p.
func Not(p Predicate) Predicate {
	return func(upd update.Update) bool {
		return !p(upd)
	}
}

func commandName(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}

	name := strings.TrimPrefix(text, "/")
	if idx := strings.IndexAny(name, " \n\t"); idx >= 0 {
		name = name[:idx]
	}
	if idx := strings.IndexByte(name, '@'); idx >= 0 {
		name = name[:idx]
	}

	return name, name != ""
}
