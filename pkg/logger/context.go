package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxFieldsKey struct{}

// ContextWithFields 将 key-value 字段挂到 context 上，
// 之后所有 *Context 日志方法都会带上这些字段（如 tenant、server）。
func ContextWithFields(ctx context.Context, keysAndValues ...interface{}) context.Context {
	if len(keysAndValues) == 0 || len(keysAndValues)%2 != 0 {
		return ctx
	}

	existing, _ := ctx.Value(ctxFieldsKey{}).([]interface{})
	merged := make([]interface{}, 0, len(existing)+len(keysAndValues))
	merged = append(merged, existing...)
	merged = append(merged, keysAndValues...)
	return context.WithValue(ctx, ctxFieldsKey{}, merged)
}

// FieldsFromContext 读取 context 上的字段
func FieldsFromContext(ctx context.Context) []interface{} {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(ctxFieldsKey{}).([]interface{})
	return fields
}

// contextFields 从 context 提取 zap 字段
func contextFields(ctx context.Context) []zap.Field {
	return toZapFields(FieldsFromContext(ctx)...)
}
