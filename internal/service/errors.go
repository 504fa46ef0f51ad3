package service

import (
	"errors"

	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

// storeError переводит ошибки хранилища в таксономию apperror.
// Конкретные операции могут перехватывать отдельные случаи раньше,
// чтобы вернуть более точное сообщение.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrProposalNotFound):
		return apperror.ErrProposalNotFound
	case errors.Is(err, repository.ErrContractNotFound):
		return apperror.ErrContractNotFound
	case errors.Is(err, repository.ErrMilestoneNotFound):
		return apperror.ErrMilestoneNotFound
	case errors.Is(err, repository.ErrDisputeNotFound):
		return apperror.ErrDisputeNotFound
	case errors.Is(err, repository.ErrTransactionNotFound):
		return apperror.ErrTransactionNotFound
	case errors.Is(err, repository.ErrConflict):
		return apperror.New(apperror.ErrCodeConflict, "состояние изменено параллельной операцией")
	case errors.Is(err, repository.ErrAlreadyExists):
		return apperror.New(apperror.ErrCodeConflict, "нарушено ограничение уникальности")
	default:
		return apperror.Wrap(err, apperror.ErrCodeInternal, "ошибка хранилища")
	}
}
