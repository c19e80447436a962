package repository

import (
	"context"
	"errors"
)

// Session данные сессии пользователя, выданной сервисом авторизации
type Session struct {
	UserID   string
	UserType string
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=SessionRepository --dir=. --output=./mocks --outpkg=mocks

// SessionRepository чтение сессий по x-session-id
type SessionRepository interface {
	Get(ctx context.Context, sessionID string) (Session, error)
}

// ErrSessionNotFound возвращается, когда сессия не найдена или истекла
var ErrSessionNotFound = errors.New("session not found")
