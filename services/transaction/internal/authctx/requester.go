package authctx

import (
	"context"
)

// Requester пользователь, от имени которого выполняется запрос
type Requester struct {
	UserID   string
	UserType string
}

// CanSeeAllTransactions admin и support видят транзакции всех пользователей
func (r Requester) CanSeeAllTransactions() bool {
	return r.UserType == "admin" || r.UserType == "support"
}

type ctxKeyRequester struct{}

var requesterKey = ctxKeyRequester{}

// WithRequester сохраняет requester в контексте (кладёт HTTP middleware)
func WithRequester(ctx context.Context, r Requester) context.Context {
	return context.WithValue(ctx, requesterKey, r)
}

// RequesterFromContext возвращает requester из контекста, если он был установлен
func RequesterFromContext(ctx context.Context) (Requester, bool) {
	r, ok := ctx.Value(requesterKey).(Requester)
	return r, ok
}
