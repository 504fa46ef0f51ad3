package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Общие ошибки репозиториев. Сервисный слой переводит их в apperror.
var (
	ErrProposalNotFound    = errors.New("proposal not found")
	ErrContractNotFound    = errors.New("contract not found")
	ErrMilestoneNotFound   = errors.New("milestone not found")
	ErrDisputeNotFound     = errors.New("dispute not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrConflict возвращается, когда условное обновление не нашло строку
	// в ожидаемом состоянии: параллельная операция выиграла гонку.
	ErrConflict = errors.New("conditional update conflict")

	// ErrAlreadyExists возвращается при нарушении ограничения уникальности.
	ErrAlreadyExists = errors.New("entity already exists")
)

// isUniqueViolation проверяет, является ли ошибка нарушением
// unique-ограничения PostgreSQL (код 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// pqStringArray оборачивает срез строк для подстановки в ANY($n).
func pqStringArray(v []string) interface{} {
	return pq.Array(v)
}
