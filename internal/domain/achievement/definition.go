// Package achievement содержит доменную модель достижений: определения,
// записи леджера и контракты хранилищ.
package achievement

import (
	"strings"

	"github.com/alem-hub/achievement-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CODE
// ══════════════════════════════════════════════════════════════════════════════

// Code: стабильный идентификатор достижения. Никогда не переиспользуется:
// логика предиката привязана к коду, а не к данным.
type Code string

// String возвращает строковое представление кода.
func (c Code) String() string {
	return string(c)
}

// Validate проверяет формат кода: строчные буквы, цифры и '_'.
func (c Code) Validate() error {
	if c == "" || len(c) > 64 {
		return shared.ErrInvalidCode
	}
	for _, r := range string(c) {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return shared.ErrInvalidCode
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DIFFICULTY & CATEGORY
// ══════════════════════════════════════════════════════════════════════════════

// Difficulty: сложность достижения. Определяет вес в рейтинге по сложности.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Weight возвращает вес сложности: Easy=1, Medium=2, Hard=3.
func (d Difficulty) Weight() int {
	switch d {
	case DifficultyEasy:
		return 1
	case DifficultyMedium:
		return 2
	case DifficultyHard:
		return 3
	default:
		return 0
	}
}

// IsValid проверяет, что сложность известна.
func (d Difficulty) IsValid() bool {
	return d.Weight() > 0
}

// ParseDifficulty разбирает сложность без учёта регистра.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", shared.ErrInvalidDifficulty
	}
	return d, nil
}

// Category группирует достижения в коллекции.
type Category string

const (
	CategoryProductivity  Category = "productivity"
	CategoryTiming        Category = "timing"
	CategoryConsistency   Category = "consistency"
	CategoryQuality       Category = "quality"
	CategoryCollaboration Category = "collaboration"
	CategoryMilestone     Category = "milestone"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// LocalizedText: перевод названия и описания.
type LocalizedText struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Definition описывает достижение. Управляется администраторами;
// код неизменен, остальные поля можно править.
type Definition struct {
	Code        Code
	Name        string
	Description string

	// Localized: переводы по BCP 47 тегу ("ru", "kk").
	Localized map[string]LocalizedText

	Icon       string
	Category   Category
	Difficulty Difficulty

	// Secret: до получения название, описание и прогресс скрыты.
	Secret bool

	// Active: выключенные достижения не оцениваются.
	Active bool

	SortOrder int
}

// Validate проверяет определение.
func (d *Definition) Validate() error {
	if err := d.Code.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(d.Name) == "" {
		return shared.NewDomainError("achievement", "Validate", shared.ErrEmptyValue, "name is required")
	}
	if !d.Difficulty.IsValid() {
		return shared.ErrInvalidDifficulty
	}
	return nil
}

// Text возвращает название и описание для тега языка.
// Пустой или неизвестный тег: базовый текст.
func (d *Definition) Text(tag string) LocalizedText {
	if tag != "" {
		if t, ok := d.Localized[tag]; ok && t.Name != "" {
			return t
		}
	}
	return LocalizedText{Name: d.Name, Description: d.Description}
}

// Update: частичное изменение определения администратором.
// nil означает "не менять".
type Update struct {
	Category   *Category
	Difficulty *Difficulty
	Secret     *bool
	Active     *bool
	SortOrder  *int
}

// IsEmpty сообщает, что изменений нет.
func (u Update) IsEmpty() bool {
	return u.Category == nil && u.Difficulty == nil && u.Secret == nil && u.Active == nil && u.SortOrder == nil
}

// Apply применяет изменения к копии определения.
func (u Update) Apply(d Definition) (Definition, error) {
	if u.Category != nil {
		d.Category = *u.Category
	}
	if u.Difficulty != nil {
		if !u.Difficulty.IsValid() {
			return d, shared.ErrInvalidDifficulty
		}
		d.Difficulty = *u.Difficulty
	}
	if u.Secret != nil {
		d.Secret = *u.Secret
	}
	if u.Active != nil {
		d.Active = *u.Active
	}
	if u.SortOrder != nil {
		d.SortOrder = *u.SortOrder
	}
	return d, nil
}

// DefinitionSet: определения, индексированные по коду.
type DefinitionSet map[Code]Definition

// NewDefinitionSet строит индекс по коду.
func NewDefinitionSet(defs []Definition) DefinitionSet {
	set := make(DefinitionSet, len(defs))
	for _, d := range defs {
		set[d.Code] = d
	}
	return set
}

// Active возвращает коды активных определений.
func (s DefinitionSet) Active() []Code {
	codes := make([]Code, 0, len(s))
	for code, d := range s {
		if d.Active {
			codes = append(codes, code)
		}
	}
	return codes
}
