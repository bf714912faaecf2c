// Package store is the embedded transactional media catalog (MediaStore,
// §4.2): a SQLite-backed GORM connection plus the folder/item CRUD and
// SystemUpdateID bookkeeping built on top of it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lumin-project/lumin/internal/config"
)

// DB wraps a GORM connection to the pure-Go SQLite driver with the
// connection-pool tuning and slog bridging the rest of the store depends on.
type DB struct {
	*gorm.DB
	cfg    config.DatabaseConfig
	logger *slog.Logger
}

// Options customizes connection behavior. Pass nil for defaults.
type Options struct {
	// PrepareStmt enables prepared statement caching. Default true; set
	// false for in-memory databases exercised inside a single transaction
	// by tests, where statement caching across reopens has no benefit.
	PrepareStmt bool
}

// openDB opens a SQLite-backed GORM connection at cfg.Path (or the literal
// path given, to let recovery reopen at a renamed-aside location or tests
// open ":memory:").
func openDB(path string, cfg config.DatabaseConfig, log *slog.Logger, opts *Options) (*DB, error) {
	if opts == nil {
		opts = &Options{PrepareStmt: true}
	}
	if log == nil {
		log = slog.Default()
	}

	dsn := path
	if path != ":memory:" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep +
			"_pragma=busy_timeout(30000)" +
			"&_pragma=journal_mode(WAL)" +
			"&_pragma=synchronous(NORMAL)" +
			"&_pragma=foreign_keys(ON)" +
			"&_pragma=cache_size(-64000)" +
			"&_pragma=mmap_size(268435456)" +
			"&_pragma=temp_store(MEMORY)"
	}

	gormLogger := newGormLogger(cfg.LogLevel, log)

	gormCfg := &gorm.Config{
		Logger:                                   gormLogger,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: false,
		PrepareStmt:                              opts.PrepareStmt,
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	gormLogger.setSQLDB(sqlDB)

	maxOpen := cfg.MaxOpenConns
	maxIdle := cfg.MaxIdleConns
	if path == ":memory:" {
		maxOpen, maxIdle = 1, 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	wrapper := &DB{DB: db, cfg: cfg, logger: log}
	wrapper.logSQLiteConfig()

	return wrapper, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	default:
		return logger.Warn
	}
}

func newGormLogger(level string, log *slog.Logger) *slogGormLogger {
	return &slogGormLogger{logger: log, level: gormLogLevel(level)}
}

// slogGormLogger implements GORM's logger.Interface over slog, so slow
// queries and lock contention surface the same way every other component's
// diagnostics do.
type slogGormLogger struct {
	logger        *slog.Logger
	level         logger.LogLevel
	sqlDB         *sql.DB
	lastStatsLog  time.Time
	statsLogMutex sync.Mutex
}

func (l *slogGormLogger) setSQLDB(db *sql.DB) {
	l.sqlDB = db
}

func (l *slogGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &slogGormLogger{logger: l.logger, level: level, sqlDB: l.sqlDB, lastStatsLog: l.lastStatsLog}
}

func (l *slogGormLogger) logStatsOnError() {
	if l.sqlDB == nil {
		return
	}

	l.statsLogMutex.Lock()
	defer l.statsLogMutex.Unlock()

	if time.Since(l.lastStatsLog) < time.Minute {
		return
	}
	l.lastStatsLog = time.Now()

	stats := l.sqlDB.Stats()
	l.logger.Warn("sqlite connection pool stats (on lock contention)",
		slog.Int("max_open_conns", stats.MaxOpenConnections),
		slog.Int("open_conns", stats.OpenConnections),
		slog.Int("in_use", stats.InUse),
		slog.Int("idle", stats.Idle),
		slog.Int64("wait_count", stats.WaitCount),
		slog.String("wait_duration", stats.WaitDuration.String()),
	)
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		l.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

const slowQueryThreshold = 1 * time.Second
const maxSQLLogLength = 200

func truncateSQL(sql string) string {
	if len(sql) <= maxSQLLogLength {
		return sql
	}
	return sql[:maxSQLLogLength] + "... (truncated)"
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	isError := err != nil
	isSlow := elapsed > slowQueryThreshold

	var willLog bool
	switch {
	case isError && l.level >= logger.Error:
		willLog = true
	case isSlow && l.level >= logger.Warn:
		willLog = l.logger.Enabled(ctx, slog.LevelWarn)
	case l.level >= logger.Info:
		willLog = l.logger.Enabled(ctx, slog.LevelDebug)
	}
	if !willLog {
		return
	}

	sqlStr, rows := fc()

	errStr := ""
	errType := ""
	if err != nil {
		errStr = err.Error()
		switch {
		case strings.Contains(errStr, "database is locked"):
			errType = "SQLITE_BUSY"
			l.logStatsOnError()
		case strings.Contains(errStr, "context canceled"):
			errType = "CONTEXT_CANCELED"
		case strings.Contains(errStr, "context deadline exceeded"):
			errType = "TIMEOUT"
		case strings.Contains(errStr, "record not found"):
			errType = "NOT_FOUND"
		default:
			errType = "OTHER"
		}
	}

	switch {
	case isError:
		l.logger.ErrorContext(ctx, "database error",
			slog.String("error_type", errType),
			slog.String("sql", truncateSQL(sqlStr)),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
			slog.String("error", errStr),
		)
	case isSlow:
		l.logger.WarnContext(ctx, "slow query",
			slog.String("sql", truncateSQL(sqlStr)),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	default:
		l.logger.DebugContext(ctx, "database query",
			slog.String("sql", truncateSQL(sqlStr)),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	}
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Transaction runs fn inside a transaction, rolling back on any error fn returns.
func (db *DB) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return db.DB.WithContext(ctx).Transaction(fn)
}

// StartStatsMonitor logs connection pool stats every 30 minutes until ctx
// is canceled.
func (db *DB) StartStatsMonitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.LogStats()
			}
		}
	}()

	db.logger.Debug("sqlite stats monitor started (logs every 30m)")
}

// LogStats logs current connection pool statistics.
func (db *DB) LogStats() {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return
	}

	stats := sqlDB.Stats()
	db.logger.Info("sqlite connection pool stats (periodic)",
		slog.Int("max_open_conns", stats.MaxOpenConnections),
		slog.Int("open_conns", stats.OpenConnections),
		slog.Int("in_use", stats.InUse),
		slog.Int("idle", stats.Idle),
		slog.Int64("wait_count", stats.WaitCount),
		slog.String("wait_duration", stats.WaitDuration.String()),
	)
}

// Stats returns database connection pool statistics.
func (db *DB) Stats() (map[string]interface{}, error) {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	return map[string]interface{}{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":                stats.InUse,
		"idle":                  stats.Idle,
		"wait_count":            stats.WaitCount,
		"wait_duration":         stats.WaitDuration.String(),
	}, nil
}

func (db *DB) logSQLiteConfig() {
	sqlDB, err := db.DB.DB()
	if err != nil {
		db.logger.Warn("failed to get sql.DB for sqlite config logging", slog.String("error", err.Error()))
		return
	}
	stats := sqlDB.Stats()

	var journalMode, synchronous, tempStore string
	var busyTimeout, cacheSize, mmapSize int64

	_ = db.DB.Raw("PRAGMA journal_mode").Scan(&journalMode)
	_ = db.DB.Raw("PRAGMA synchronous").Scan(&synchronous)
	_ = db.DB.Raw("PRAGMA busy_timeout").Scan(&busyTimeout)
	_ = db.DB.Raw("PRAGMA cache_size").Scan(&cacheSize)
	_ = db.DB.Raw("PRAGMA mmap_size").Scan(&mmapSize)
	_ = db.DB.Raw("PRAGMA temp_store").Scan(&tempStore)

	db.logger.Info("sqlite configuration",
		slog.String("journal_mode", journalMode),
		slog.String("synchronous", synchronous),
		slog.Int64("busy_timeout_ms", busyTimeout),
		slog.Int64("cache_size", cacheSize),
		slog.Int64("mmap_size_mb", mmapSize/(1024*1024)),
		slog.String("temp_store", tempStore),
	)
	db.logger.Info("sqlite connection pool",
		slog.Int("max_open_conns", stats.MaxOpenConnections),
		slog.Int("open_conns", stats.OpenConnections),
	)
}
