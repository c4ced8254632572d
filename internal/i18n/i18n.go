// Package i18n loads the bot's user-facing texts from YAML catalogs.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var builtin embed.FS

// Translator resolves localized strings using dot-separated keys.
type Translator interface {
	T(key string) string
	Tf(key string, args ...any) string
	Lang() string
}

// Manager stores all available translations.
type Manager struct {
	translations map[string]map[string]string
	defaultLang  string
}

var loadBuiltin = sync.OnceValues(func() (*Manager, error) {
	return LoadFS(builtin, "locales", "en")
})

// Builtin returns the catalog compiled into the binary.
func Builtin() (*Manager, error) {
	return loadBuiltin()
}

// LoadFromDir loads translations from a directory containing YAML files.
func LoadFromDir(dir, defaultLang string) (*Manager, error) {
	return LoadFS(os.DirFS(dir), ".", defaultLang)
}

// LoadFS loads translations from the YAML files in root of fsys.
func LoadFS(fsys fs.FS, root, defaultLang string) (*Manager, error) {
	catalog, err := parseDir(fsys, root)
	if err != nil {
		return nil, err
	}

	if defaultLang == "" {
		defaultLang = "en"
	}

	if _, ok := catalog[defaultLang]; !ok {
		return nil, fmt.Errorf("i18n: default language %q is missing", defaultLang)
	}

	return &Manager{translations: catalog, defaultLang: defaultLang}, nil
}

// Translator returns a translator for the requested language. Region subtags are ignored,
// so "en-US" resolves to "en"; unknown languages fall back to the default.
func (m *Manager) Translator(lang string) Translator {
	if m == nil {
		return translator{}
	}

	norm := strings.ToLower(strings.TrimSpace(lang))
	if base, _, found := strings.Cut(norm, "-"); found {
		norm = base
	}
	if norm == "" || m.translations[norm] == nil {
		norm = m.defaultLang
	}

	return translator{
		lang:     norm,
		primary:  m.translations[norm],
		fallback: m.translations[m.defaultLang],
	}
}

// Languages returns all loaded languages in sorted order.
func (m *Manager) Languages() []string {
	if m == nil {
		return nil
	}

	languages := make([]string, 0, len(m.translations))
	for lang := range m.translations {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	return languages
}

type translator struct {
	lang     string
	primary  map[string]string
	fallback map[string]string
}

func (t translator) Lang() string {
	return t.lang
}

// T returns the text for key, then the default language's text, then the key itself.
func (t translator) T(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}

	for _, entries := range [...]map[string]string{t.primary, t.fallback} {
		if value, ok := entries[key]; ok && value != "" {
			return value
		}
	}

	return key
}

// Tf formats the translation of key with args.
func (t translator) Tf(key string, args ...any) string {
	return fmt.Sprintf(t.T(key), args...)
}

func parseDir(fsys fs.FS, dir string) (map[string]map[string]string, error) {
	names, err := fs.Glob(fsys, path.Join(dir, "*"))
	if err != nil {
		return nil, fmt.Errorf("i18n: list %s: %w", dir, err)
	}

	catalog := make(map[string]map[string]string)
	found := 0
	for _, name := range names {
		if !isYAML(name) {
			continue
		}
		found++

		if err := parseFile(fsys, name, catalog); err != nil {
			return nil, err
		}
	}

	if found == 0 {
		return nil, fmt.Errorf("i18n: no yaml files found in %s", dir)
	}

	return catalog, nil
}

func isYAML(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// parseFile merges a file of the form "<lang>: {nested keys}" into catalog.
// Later files override earlier ones key by key.
func parseFile(fsys fs.FS, name string, catalog map[string]map[string]string) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("i18n: read file %s: %w", name, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("i18n: parse file %s: %w", name, err)
	}
	if len(doc.Content) == 0 {
		return nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("i18n: %s: top level must map languages to texts", name)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		lang := strings.ToLower(strings.TrimSpace(root.Content[i].Value))
		if lang == "" {
			continue
		}

		entries := catalog[lang]
		if entries == nil {
			entries = make(map[string]string)
		}
		collect("", root.Content[i+1], entries)
		if len(entries) > 0 {
			catalog[lang] = entries
		}
	}

	return nil
}

// collect stores every scalar under node using dot-joined keys.
func collect(prefix string, node *yaml.Node, out map[string]string) {
	switch node.Kind {
	case yaml.ScalarNode:
		if prefix != "" {
			out[prefix] = node.Value
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			if key == "" {
				continue
			}
			if prefix != "" {
				key = prefix + "." + key
			}
			collect(key, node.Content[i+1], out)
		}
	case yaml.AliasNode:
		if node.Alias != nil {
			collect(prefix, node.Alias, out)
		}
	}
}
