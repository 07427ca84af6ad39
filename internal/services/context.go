package services

import "context"

type contextKey string

const (
	topicIDKey   contextKey = "topic_id"
	laneKey      contextKey = "lane"
	actionKey    contextKey = "action"
	requestIDKey contextKey = "request_id"
)

// WithTopicID annotates context with the topic identifier.
func WithTopicID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, topicIDKey, id)
}

// TopicIDFromContext extracts the topic identifier if present.
func TopicIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(topicIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithLane annotates context with the background lane name.
func WithLane(ctx context.Context, lane string) context.Context {
	if lane == "" {
		return ctx
	}
	return context.WithValue(ctx, laneKey, lane)
}

// LaneFromContext returns the lane name if present.
func LaneFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(laneKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithAction annotates context with the audited action name.
func WithAction(ctx context.Context, action string) context.Context {
	if action == "" {
		return ctx
	}
	return context.WithValue(ctx, actionKey, action)
}

// ActionFromContext returns the audited action name if present.
func ActionFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(actionKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
