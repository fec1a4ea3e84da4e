package achievement

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record: запись о полученном достижении. Уникальна по (UserID, Code).
// Append-only: единственное допустимое изменение: NotifiedAt из nil в время.
type Record struct {
	UserID     string
	Code       Code
	EarnedAt   time.Time
	NotifiedAt *time.Time
}

// IsNotified сообщает, доставлено ли уведомление.
func (r Record) IsNotified() bool {
	return r.NotifiedAt != nil
}

// EarnedSet: полученные коды по пользователям.
type EarnedSet map[string]map[Code]struct{}

// Has проверяет, есть ли у пользователя запись.
func (s EarnedSet) Has(userID string, code Code) bool {
	_, ok := s[userID][code]
	return ok
}

// Add отмечает запись как полученную.
func (s EarnedSet) Add(userID string, code Code) {
	codes, ok := s[userID]
	if !ok {
		codes = make(map[Code]struct{})
		s[userID] = codes
	}
	codes[code] = struct{}{}
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Ledger: хранилище записей о достижениях.
// Уникальность (user, code) обеспечивается на уровне хранилища:
// вставка: атомарный conflict-skip, без проверки "прочитал, потом вставил".
type Ledger interface {
	// Create вставляет запись с NotifiedAt = nil.
	// Если пара уже есть: inserted=false, err=nil.
	Create(ctx context.Context, userID string, code Code, earnedAt time.Time) (inserted bool, err error)

	// MarkNotified переводит NotifiedAt из nil в at. Идемпотентно.
	MarkNotified(ctx context.Context, userID string, code Code, at time.Time) error

	// MarkAllNotified переводит все неуведомлённые записи пользователя.
	// Возвращает количество изменённых записей.
	MarkAllNotified(ctx context.Context, userID string, at time.Time) (int, error)

	// ListByUser возвращает все записи пользователя по EarnedAt.
	ListByUser(ctx context.Context, userID string) ([]Record, error)

	// ListUnnotified возвращает записи с NotifiedAt = nil по EarnedAt.
	ListUnnotified(ctx context.Context, userID string) ([]Record, error)

	// ListByUsers возвращает записи набора пользователей одним запросом.
	ListByUsers(ctx context.Context, userIDs []string) ([]Record, error)

	// EarnedCodes возвращает полученные коды набора пользователей одним запросом.
	EarnedCodes(ctx context.Context, userIDs []string) (EarnedSet, error)
}

// DefinitionRepository: хранилище определений достижений.
type DefinitionRepository interface {
	// List возвращает все определения по SortOrder, затем по коду.
	List(ctx context.Context) ([]Definition, error)

	// Get возвращает определение по коду или shared.ErrDefinitionNotFound.
	Get(ctx context.Context, code Code) (*Definition, error)

	// Save обновляет изменяемые поля существующего определения.
	Save(ctx context.Context, def Definition) error

	// Seed вставляет отсутствующие определения, не трогая существующие.
	Seed(ctx context.Context, defs []Definition) (int, error)
}
