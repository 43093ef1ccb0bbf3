// Package localization provides functionality for internationalization (i18n).
// It loads translation strings from JSON files and provides a simple way to get
// localized strings for different languages.
package localization

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
)

//go:embed locales/*.json
var bundled embed.FS

// DefaultLanguage is used when a requested language or key is missing.
const DefaultLanguage = "en"

// Localizer manages the translations for the application.
// It holds a map of languages, each with its own map of translation keys and values.
type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
}

// NewLocalizer loads every "<lang>.json" file in dir of fsys.
func NewLocalizer(fsys fs.FS, dir string) (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
	}

	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("localization: read directory %s: %w", dir, err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		lang := strings.TrimSuffix(file.Name(), ".json")
		data, err := fs.ReadFile(fsys, path.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("localization: read %s: %w", file.Name(), err)
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return nil, fmt.Errorf("localization: parse %s: %w", file.Name(), err)
		}

		l.translations[lang] = translations
	}

	return l, nil
}

// Bundled returns a Localizer over the translations compiled into the binary.
func Bundled() *Localizer {
	l, err := NewLocalizer(bundled, "locales")
	if err != nil {
		panic(err)
	}
	return l
}

// Languages lists the loaded language codes.
func (l *Localizer) Languages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	langs := make([]string, 0, len(l.translations))
	for lang := range l.translations {
		langs = append(langs, lang)
	}
	return langs
}

// GetString returns the localized string for a given key and language.
// If the language or the key is not found, English is tried, then the key
// itself is returned.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if langTranslations, ok := l.translations[lang]; ok {
		if value, ok := langTranslations[key]; ok {
			return value
		}
	}

	if lang != DefaultLanguage {
		if enTranslations, ok := l.translations[DefaultLanguage]; ok {
			if value, ok := enTranslations[key]; ok {
				return value
			}
		}
	}

	return key
}

// Format looks up key like GetString and applies fmt.Sprintf with args.
func (l *Localizer) Format(lang, key string, args ...any) string {
	return fmt.Sprintf(l.GetString(lang, key), args...)
}
