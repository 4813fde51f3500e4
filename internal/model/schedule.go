package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// schedule_rules: недельный шаблон работы ресурса.
type ScheduleRule struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	BusinessID uuid.UUID  `gorm:"type:uuid;not null;index"`
	BranchID   *uuid.UUID `gorm:"type:uuid;index"`
	WorkerID   *uuid.UUID `gorm:"type:uuid;index"`
	ScopeKey   string     `gorm:"type:varchar(120);not null;index:idx_schedule_scope_day"`

	// 0 = воскресенье, как time.Weekday.
	DayOfWeek int `gorm:"not null;index:idx_schedule_scope_day"`

	// Время суток в таймзоне бизнеса.
	StartTime datatypes.Time `gorm:"type:time;not null"`
	EndTime   datatypes.Time `gorm:"type:time;not null"`

	SlotDurationMinutes int `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Business *Business `gorm:"foreignKey:BusinessID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (r *ScheduleRule) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r *ScheduleRule) BeforeSave(*gorm.DB) error {
	r.ScopeKey = r.Scope().Key()
	return nil
}

func (r *ScheduleRule) Scope() Scope {
	return Scope{BusinessID: r.BusinessID, BranchID: r.BranchID, WorkerID: r.WorkerID}
}

func (r *ScheduleRule) SlotDuration() time.Duration {
	return time.Duration(r.SlotDurationMinutes) * time.Minute
}

// exception_rules: закрытие или особое окно на конкретную дату.
type ExceptionRule struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	BusinessID uuid.UUID  `gorm:"type:uuid;not null;index"`
	BranchID   *uuid.UUID `gorm:"type:uuid"`
	WorkerID   *uuid.UUID `gorm:"type:uuid"`
	ScopeKey   string     `gorm:"type:varchar(120);not null;uniqueIndex:idx_exception_scope_date"`

	// Календарная дата в таймзоне бизнеса.
	Date datatypes.Date `gorm:"type:date;not null;uniqueIndex:idx_exception_scope_date;index"`

	IsClosed bool `gorm:"not null;default:false"`

	// Заполнены только для особого окна (IsClosed = false).
	StartTime *datatypes.Time `gorm:"type:time"`
	EndTime   *datatypes.Time `gorm:"type:time"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Business *Business `gorm:"foreignKey:BusinessID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (e *ExceptionRule) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

func (e *ExceptionRule) BeforeSave(*gorm.DB) error {
	e.ScopeKey = e.Scope().Key()
	return nil
}

func (e *ExceptionRule) Scope() Scope {
	return Scope{BusinessID: e.BusinessID, BranchID: e.BranchID, WorkerID: e.WorkerID}
}

// TimeOfDay строит время суток для колонок правил.
func TimeOfDay(hour, minute int) datatypes.Time {
	return datatypes.NewTime(hour, minute, 0, 0)
}
