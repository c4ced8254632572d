package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin_HasEveryKeyInEveryLanguage(t *testing.T) {
	m, err := Builtin()
	require.NoError(t, err)
	require.Equal(t, []string{"en", "ru"}, m.Languages())

	for key := range m.translations["en"] {
		assert.Contains(t, m.translations["ru"], key)
	}
}

func TestTranslator_FallsBack(t *testing.T) {
	fsys := fstest.MapFS{
		"en.yaml": {Data: []byte("en:\n  greet: \"hi %s\"\n  only_en: yes-en\n")},
		"de.yml":  {Data: []byte("de:\n  greet: \"hallo %s\"\n")},
		"x.txt":   {Data: []byte("ignored")},
	}

	m, err := LoadFS(fsys, ".", "en")
	require.NoError(t, err)

	de := m.Translator("de-AT")
	assert.Equal(t, "de", de.Lang())
	assert.Equal(t, "hallo Bob", de.Tf("greet", "Bob"))
	assert.Equal(t, "yes-en", de.T("only_en"))
	assert.Equal(t, "missing.key", de.T("missing.key"))

	assert.Equal(t, "en", m.Translator("fr").Lang())
}

func TestLoadFS_RequiresDefaultLanguage(t *testing.T) {
	fsys := fstest.MapFS{"de.yaml": {Data: []byte("de:\n  a: b\n")}}

	_, err := LoadFS(fsys, ".", "en")
	assert.Error(t, err)
}
