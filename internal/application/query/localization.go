package query

import (
	"sort"

	"golang.org/x/text/language"

	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
)

// SecretIcon заменяет иконку секретного достижения, которое ещё не получено.
const SecretIcon = "🔒"

var secretText = map[string]achievement.LocalizedText{
	"":   {Name: "Secret achievement", Description: "Keep going to reveal this achievement"},
	"ru": {Name: "Секретное достижение", Description: "Продолжайте, чтобы открыть это достижение"},
}

// textPicker выбирает локализацию по Accept-Language.
// Базовый текст определения считается английским.
type textPicker struct {
	matcher language.Matcher
	keys    []string
}

// newTextPicker собирает поддерживаемые языки из определений.
func newTextPicker(defs []achievement.Definition) *textPicker {
	seen := map[string]bool{}
	var extra []string
	for _, d := range defs {
		for key := range d.Localized {
			if seen[key] {
				continue
			}
			if _, err := language.Parse(key); err != nil {
				continue
			}
			seen[key] = true
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)

	tags := []language.Tag{language.English}
	keys := []string{""}
	for _, key := range extra {
		tags = append(tags, language.MustParse(key))
		keys = append(keys, key)
	}
	return &textPicker{matcher: language.NewMatcher(tags), keys: keys}
}

// pick возвращает ключ локализации (пустая строка означает базовый текст).
func (p *textPicker) pick(acceptLanguage string) string {
	if acceptLanguage == "" {
		return ""
	}
	_, idx := language.MatchStrings(p.matcher, acceptLanguage)
	if idx < 0 || idx >= len(p.keys) {
		return ""
	}
	return p.keys[idx]
}

// placeholder возвращает текст секретного достижения.
func placeholder(lang string) achievement.LocalizedText {
	if t, ok := secretText[lang]; ok {
		return t
	}
	return secretText[""]
}
