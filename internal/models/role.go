package models

import "github.com/google/uuid"

// Роли пользователей платформы
const (
	RoleEmployer   = "employer"
	RoleContractor = "contractor"
	RoleAdmin      = "admin"
)

// ValidRoles список валидных ролей
var ValidRoles = map[string]struct{}{
	RoleEmployer:   {},
	RoleContractor: {},
	RoleAdmin:      {},
}

// SystemActorID — служебный идентификатор для операций, инициированных
// самой платформой (например, авто-выплата по таймеру).
var SystemActorID = uuid.Nil
