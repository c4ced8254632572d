package handlers

import (
	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	"github.com/Proton-105/himera-dispatch/internal/i18n"
)

var translatorKey = dispatch.NewKey[i18n.Translator]("translator")

// WithTranslations picks the catalog language of every update from its sender.
func WithTranslations(m *i18n.Manager) dispatch.Injector {
	return func(c *dispatch.Context) {
		dispatch.Set(c, translatorKey, m.Translator(c.Update().Language))
	}
}

func tr(c *dispatch.Context) i18n.Translator {
	if t, ok := dispatch.Get(c, translatorKey); ok {
		return t
	}
	// a broken embedded catalog yields the keys themselves
	m, _ := i18n.Builtin()
	return m.Translator(c.Update().Language)
}
