package repository

import (
	"gorm.io/gorm"

	"github.com/Leganyst/appointment-booking/internal/model"
)

// whereScopeFilter: business обязателен, пустые branch/worker не фильтруют.
func whereScopeFilter(q *gorm.DB, s model.Scope) *gorm.DB {
	q = q.Where("business_id = ?", s.BusinessID)
	if s.BranchID != nil {
		q = q.Where("branch_id = ?", *s.BranchID)
	}
	if s.WorkerID != nil {
		q = q.Where("worker_id = ?", *s.WorkerID)
	}
	return q
}

// whereResource: точное совпадение ресурса, NULL равен NULL.
func whereResource(q *gorm.DB, s model.Scope) *gorm.DB {
	return q.Where("scope_key = ?", s.Key())
}
