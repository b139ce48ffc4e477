package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool // include bound variables in spans, development only
	SlowQueryThresh time.Duration
	DBSystem        string
}

// DefaultDBTracingConfig returns default configuration for database tracing
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

var (
	AttrDBTable          = attribute.Key("db.sql.table")
	AttrDBRowsAffected   = attribute.Key("db.rows_affected")
	AttrDBSlowQuery      = attribute.Key("db.slow_query")
	AttrDBQueryDurationM = attribute.Key("db.query_duration_ms")
)

type queryStartKey struct{}

// RegisterDBTracing installs the otelgorm plugin and a callback that tags
// slow or failed statements on the current span and logs slow ones
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = DefaultDBTracingConfig().SlowQueryThresh
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey{}, time.Now())
		}
	}
	after := func(tx *gorm.DB) { annotateStatement(tx, cfg.SlowQueryThresh, logger) }

	cb := db.Callback()
	for _, err := range []error{
		cb.Create().Before("gorm:create").Register("procurement:timing_create", before),
		cb.Query().Before("gorm:query").Register("procurement:timing_query", before),
		cb.Update().Before("gorm:update").Register("procurement:timing_update", before),
		cb.Delete().Before("gorm:delete").Register("procurement:timing_delete", before),
		cb.Row().Before("gorm:row").Register("procurement:timing_row", before),
		cb.Raw().Before("gorm:raw").Register("procurement:timing_raw", before),
		cb.Create().After("gorm:create").Register("procurement:annotate_create", after),
		cb.Query().After("gorm:query").Register("procurement:annotate_query", after),
		cb.Update().After("gorm:update").Register("procurement:annotate_update", after),
		cb.Delete().After("gorm:delete").Register("procurement:annotate_delete", after),
		cb.Row().After("gorm:row").Register("procurement:annotate_row", after),
		cb.Raw().After("gorm:raw").Register("procurement:annotate_raw", after),
	} {
		if err != nil {
			return err
		}
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh))
	return nil
}

func annotateStatement(tx *gorm.DB, thresh time.Duration, logger *zap.Logger) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)

	if tx.Statement.Table != "" {
		span.SetAttributes(AttrDBTable.String(tx.Statement.Table))
	}
	span.SetAttributes(AttrDBRowsAffected.Int64(tx.Statement.RowsAffected))
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		span.RecordError(tx.Error)
	}

	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > thresh {
		span.SetAttributes(AttrDBSlowQuery.Bool(true), AttrDBQueryDurationM.Int64(elapsed.Milliseconds()))
		logger.Warn("Slow query",
			zap.String("table", tx.Statement.Table),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", thresh),
			zap.Int64("rows", tx.Statement.RowsAffected))
	}
}
