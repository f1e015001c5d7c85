package domain

import "context"

// AssignmentObserver is told every time a task is handed to a worker.
// attempt starts at 1.
type AssignmentObserver func(workerID string, attempt int)

type assignmentKey struct{}

// WithAssignmentObserver attaches fn to ctx.
func WithAssignmentObserver(ctx context.Context, fn AssignmentObserver) context.Context {
	return context.WithValue(ctx, assignmentKey{}, fn)
}

// AssignmentObserverFrom returns the observer attached to ctx or a no-op.
func AssignmentObserverFrom(ctx context.Context) AssignmentObserver {
	if fn, ok := ctx.Value(assignmentKey{}).(AssignmentObserver); ok && fn != nil {
		return fn
	}
	return func(string, int) {}
}
