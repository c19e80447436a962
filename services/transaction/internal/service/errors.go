package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount сумма не выставляется шлюзу или не помещается в NUMERIC(14,2)
	ErrInvalidAmount = errors.New("amount must be greater than zero, have at most 2 decimal places and not exceed 999999999999.99")
	// ErrUserIDRequired транзакция всегда создаётся от имени пользователя
	ErrUserIDRequired = errors.New("user_id is required")
	// ErrInvalidPagination отрицательные limit/page
	ErrInvalidPagination = errors.New("limit and page must not be negative")
	// ErrCreateFailed единая ошибка создания для пользователя; причина лежит в цепочке wrap
	ErrCreateFailed = errors.New("failed to generate QR")
)

// PersistenceError сбой хранилища. Для webhook означает, что шлюз должен повторить доставку.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
