package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context pairs a request context with an optional transaction handle.
// Repos fall back to their own *gorm.DB when Tx is nil, so callers only
// populate Tx when several writes must commit together.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

func (c Context) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}
