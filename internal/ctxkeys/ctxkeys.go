package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	userIDKey    contextKey = "user_id"
	missionIDKey contextKey = "mission_id"
	hopIDKey     contextKey = "hop_id"
)

// WithTraceID 设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID 获取 TraceID
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithUserID 设置调用方用户身份
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID 获取调用方用户身份
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithMissionID 设置当前任务 ID
func WithMissionID(ctx context.Context, missionID string) context.Context {
	return context.WithValue(ctx, missionIDKey, missionID)
}

// MissionID 获取当前任务 ID
func MissionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(missionIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithHopID 设置当前跳步 ID
func WithHopID(ctx context.Context, hopID string) context.Context {
	return context.WithValue(ctx, hopIDKey, hopID)
}

// HopID 获取当前跳步 ID
func HopID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(hopIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
