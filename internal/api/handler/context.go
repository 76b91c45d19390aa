package handler

import (
	"context"

	"github.com/cityaqi/cityaqi/internal/api/middleware"
)

// GetSubject retrieves the authenticated operator from the context.
// This is a convenience wrapper around middleware.GetSubject.
func GetSubject(ctx context.Context) string {
	return middleware.GetSubject(ctx)
}
