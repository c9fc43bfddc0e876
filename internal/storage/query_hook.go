package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
)

// queryHook logs every bun query at debug level.
type queryHook struct{}

var _ bun.QueryHook = (*queryHook)(nil)

func newQueryHook() *queryHook {
	return &queryHook{}
}

func (h *queryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	ev := log.Debug()
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		ev = log.Warn().Err(event.Err)
	}
	ev.Str("component", "storage").
		Str("operation", event.Operation()).
		Dur("duration", time.Since(event.StartTime)).
		Str("query", event.Query).
		Msg("Query executed")
}
