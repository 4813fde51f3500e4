package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Scope адресует ресурс бронирования: бизнес, филиал (опц.) и сотрудника (опц.).
type Scope struct {
	BusinessID uuid.UUID
	BranchID   *uuid.UUID
	WorkerID   *uuid.UUID
}

// Key: строковый ключ ресурса; пустые уровни пишутся как "-".
// Хранится рядом с nullable-колонками, чтобы работали уникальные индексы и блокировки.
func (s Scope) Key() string {
	return s.BusinessID.String() + "|" + optKey(s.BranchID) + "|" + optKey(s.WorkerID)
}

// SameResource сравнивает ресурсы точно: nil равен только nil.
func (s Scope) SameResource(o Scope) bool {
	return s.BusinessID == o.BusinessID && eqOpt(s.BranchID, o.BranchID) && eqOpt(s.WorkerID, o.WorkerID)
}

// Matches проверяет, подходит ли ресурс r под фильтр запроса s.
// nil в фильтре: любой филиал/сотрудник.
func (s Scope) Matches(r Scope) bool {
	if s.BusinessID != r.BusinessID {
		return false
	}
	if s.BranchID != nil && !eqOpt(s.BranchID, r.BranchID) {
		return false
	}
	if s.WorkerID != nil && !eqOpt(s.WorkerID, r.WorkerID) {
		return false
	}
	return true
}

// AppliesTo проверяет, распространяется ли правило со скоупом s на ресурс r:
// каждый заполненный уровень правила должен совпасть с ресурсом.
// Правило работает как фильтр, поэтому логика совпадает с Matches.
func (s Scope) AppliesTo(r Scope) bool {
	return s.Matches(r)
}

// Specificity: насколько узко правило: сотрудник весит 2, филиал 1.
// Чем больше, тем приоритетнее исключение.
func (s Scope) Specificity() int {
	n := 0
	if s.BranchID != nil {
		n++
	}
	if s.WorkerID != nil {
		n += 2
	}
	return n
}

func optKey(id *uuid.UUID) string {
	if id == nil {
		return "-"
	}
	return id.String()
}

func eqOpt(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CivilDate отбрасывает время и возвращает календарную дату (полночь UTC).
// Год/месяц/день берутся в локации t.
func CivilDate(t time.Time) datatypes.Date {
	y, m, d := t.Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// ParseDate разбирает "YYYY-MM-DD".
func ParseDate(s string) (datatypes.Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return datatypes.Date{}, err
	}
	return datatypes.Date(t), nil
}

// FormatDate: обратная к ParseDate.
func FormatDate(d datatypes.Date) string {
	return time.Time(d).Format(time.DateOnly)
}
