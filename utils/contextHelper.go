package utils

import (
	"context"
)

type contextKey string

const (
	ContextKeyBusinessId contextKey = "business_id"
	ContextKeyUserId     contextKey = "user_id"
	ContextKeyUserName   contextKey = "user_name"
	ContextKeyUserRole   contextKey = "user_role"

	ContextKeyCorrelationId contextKey = "correlation_id"
)

func GetBusinessIdFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyBusinessId).(string)
	return v, ok
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(ContextKeyUserId).(int)
	return v, ok
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyUserName).(string)
	return v, ok
}

func GetUserRoleFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyUserRole).(string)
	return v, ok
}

func SetBusinessIdInContext(ctx context.Context, businessId string) context.Context {
	return context.WithValue(ctx, ContextKeyBusinessId, businessId)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return context.WithValue(ctx, ContextKeyUserId, userId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return context.WithValue(ctx, ContextKeyUserName, userName)
}

func SetUserRoleInContext(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ContextKeyUserRole, role)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyCorrelationId).(string)
	return v, ok
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationId, correlationId)
}
