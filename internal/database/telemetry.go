package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/oracle-alpha-go/internal/telemetry"
)

// SlowQueryThreshold defines the duration after which a query is considered slow.
const SlowQueryThreshold = 500 * time.Millisecond

type queryStartTimeKey struct{}

// PostgresTracer implements pgx.QueryTracer with OpenTelemetry spans.
type PostgresTracer struct{}

func NewPostgresTracer() *PostgresTracer {
	return &PostgresTracer{}
}

// TraceQueryStart is called at the beginning of a query execution.
func (t *PostgresTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	operation, table := parseSQL(data.SQL)

	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", operation),
		attribute.String("db.statement", truncateSQL(data.SQL, 200)),
	}
	if table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", table))
	}

	ctx, _ = telemetry.GetDatabaseTracer().Start(ctx, "db.sql."+strings.ToLower(operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return context.WithValue(ctx, queryStartTimeKey{}, time.Now())
}

// TraceQueryEnd is called after a query execution.
func (t *PostgresTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	defer span.End()

	span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	if start, ok := ctx.Value(queryStartTimeKey{}).(time.Time); ok {
		duration := time.Since(start)
		span.SetAttributes(attribute.Int64("db.duration_ms", duration.Milliseconds()))
		if duration > SlowQueryThreshold {
			span.SetAttributes(attribute.Bool("db.slow_query", true))
		}
	}

	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		var pgErr *pgconn.PgError
		if errors.As(data.Err, &pgErr) {
			span.SetAttributes(
				attribute.String("pg.code", pgErr.Code),
				attribute.String("pg.severity", pgErr.Severity),
			)
		}
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, data.Err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// RedisTracingHook implements redis.Hook with OpenTelemetry spans.
type RedisTracingHook struct {
	serviceName string
}

func NewRedisTracingHook(serviceName string) *RedisTracingHook {
	if serviceName == "" {
		serviceName = "redis"
	}
	return &RedisTracingHook{serviceName: serviceName}
}

// DialHook is called when a new connection is established.
func (h *RedisTracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		ctx, span := h.start(ctx, "db.redis.dial",
			attribute.String("net.peer.name", addr),
			attribute.String("net.transport", network),
		)
		defer span.End()

		conn, err := next(ctx, network, addr)
		finishRedisSpan(span, err)
		return conn, err
	}
}

// ProcessHook is called around every command.
func (h *RedisTracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := h.start(ctx, "db.redis."+cmd.Name(),
			attribute.String("db.operation", cmd.Name()),
		)
		defer span.End()

		err := next(ctx, cmd)
		finishRedisSpan(span, err)
		return err
	}
}

// ProcessPipelineHook is called around every pipeline.
func (h *RedisTracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
		}
		ctx, span := h.start(ctx, "db.redis.pipeline",
			attribute.String("db.operation", "pipeline"),
			attribute.Int("db.pipeline_size", len(cmds)),
			attribute.StringSlice("db.commands", names),
		)
		defer span.End()

		err := next(ctx, cmds)
		finishRedisSpan(span, err)
		return err
	}
}

func (h *RedisTracingHook) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("db.system", "redis"),
		attribute.String("service", h.serviceName),
	)
	return telemetry.GetCacheTracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// redis.Nil is a cache miss, not a failure.
func finishRedisSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// parseSQL extracts operation type and table name from SQL.
func parseSQL(sql string) (operation string, table string) {
	upper := strings.TrimSpace(strings.ToUpper(sql))

	operation = "OTHER"
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE", "CREATE", "ALTER", "DROP", "BEGIN", "COMMIT", "ROLLBACK"} {
		if strings.HasPrefix(upper, op) {
			operation = op
			break
		}
	}
	return operation, extractTableName(upper)
}

// extractTableName attempts to extract the table name from SQL.
func extractTableName(sql string) string {
	sql = strings.ToUpper(sql)

	for _, prefix := range []string{"FROM ", "INTO ", "UPDATE ", "EXISTS ", "TABLE ", "JOIN "} {
		idx := strings.Index(sql, prefix)
		if idx == -1 {
			continue
		}
		rest := strings.TrimSpace(sql[idx+len(prefix):])
		end := strings.IndexAny(rest, " \t\n()")
		if end == -1 {
			end = len(rest)
		}
		if end > 0 {
			return strings.ToLower(rest[:end])
		}
	}
	return ""
}

// truncateSQL truncates SQL to a maximum length for display.
func truncateSQL(sql string, maxLen int) string {
	sql = strings.Join(strings.Fields(sql), " ")
	if len(sql) <= maxLen {
		return sql
	}
	return fmt.Sprintf("%s...", sql[:maxLen])
}
