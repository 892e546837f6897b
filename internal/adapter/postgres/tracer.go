package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// QueryObserver receives the outcome of every query.
type QueryObserver interface {
	ObserveQuery(name string, failed bool, duration time.Duration)
}

// Tracer implements pgx.QueryTracer on top of a QueryObserver.
type Tracer struct {
	observer QueryObserver
}

var _ pgx.QueryTracer = (*Tracer)(nil)

func NewTracer(observer QueryObserver) *Tracer {
	return &Tracer{observer: observer}
}

type queryContextKey struct{}

type queryContext struct {
	startTime time.Time
	queryName string
}

func (t *Tracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{
		startTime: time.Now(),
		queryName: extractQueryName(data.SQL),
	})
}

func (t *Tracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}
	t.observer.ObserveQuery(qctx.queryName, data.Err != nil, time.Since(qctx.startTime))
}

// extractQueryName returns the leading SQL verb, keeping metric label cardinality low.
func extractQueryName(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	name := strings.ToUpper(fields[0])
	if len(name) > 20 {
		return name[:20]
	}
	return name
}
