package model

import "gorm.io/gorm"

// AutoMigrate выполняет миграцию всех сущностей ядра бронирования.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Business{},
		&Branch{},
		&Worker{},
		&ScheduleRule{},
		&ExceptionRule{},
		&Appointment{},
		&TemporaryToken{},
		&PrecomputedSlot{},
		&PrecomputedDay{},
		&ResourceLock{},
		&AuditEvent{},
	)
}
