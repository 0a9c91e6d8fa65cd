package application

import (
	"context"

	"gitlab.com/kalkoapp/api/kalko-edge-service/pkg/contextkeys"
)

// anonymousOwner scopes cache entries made outside an authenticated session
// (test-mode bypass). All such requests share one partition.
const anonymousOwner = "anonymous"

// cacheOwner returns the cache partition for the request's session. Backend
// fetches are authorized with the requesting user's token, so everything they
// return is user-scoped data; entries are partitioned by the authenticated
// user ID so one session's rows are never served to another.
func cacheOwner(ctx context.Context) string {
	if id, ok := ctx.Value(contextkeys.UserIDKey).(string); ok && id != "" {
		return id
	}
	return anonymousOwner
}
