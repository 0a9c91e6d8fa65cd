// Package safego runs background goroutines with panic containment, so a
// failure in a detached loop is logged instead of taking the process down.
package safego

import (
	"context"
	"fmt"
	"runtime/debug"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
)

// Execute starts fn on a new goroutine. A panic inside fn is recovered and
// logged with the goroutine's name and stack trace.
func Execute(ctx context.Context, logger domain.Logger, name string, fn func()) {
	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logCtx := ctx
			if logCtx.Err() != nil {
				// The goroutine may outlive its parent; keep the log write
				// working even after cancellation.
				logCtx = context.Background()
			}
			logger.Error(logCtx, "Background goroutine panicked",
				"goroutine", name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}()
		fn()
	}()
}
