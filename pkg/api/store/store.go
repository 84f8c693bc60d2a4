package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/earthframe/earthframe/pkg/api/store/migrations"
	"github.com/earthframe/earthframe/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store provides persistence for API resources.
type Store interface {
	Start(ctx context.Context) error
	Stop() error
	Ping(ctx context.Context) error

	// Machines.
	CreateMachine(ctx context.Context, machine *Machine) error
	ListMachines(ctx context.Context) ([]Machine, error)
	GetMachine(ctx context.Context, id uuid.UUID) (*Machine, error)
	GetMachineByName(ctx context.Context, name string) (*Machine, error)

	// Simulations.
	CreateSimulation(ctx context.Context, sim *Simulation) (*Simulation, error)
	ListSimulations(ctx context.Context, filter SimulationFilter) ([]Simulation, error)
	GetSimulation(ctx context.Context, id uuid.UUID) (*Simulation, error)
	DeleteSimulation(ctx context.Context, id uuid.UUID) error
	ListChildSimulations(ctx context.Context, parentID uuid.UUID) ([]Simulation, error)
	GetArtifact(ctx context.Context, simulationID, artifactID uuid.UUID) (*Artifact, error)

	// Lookups.
	ListStatuses(ctx context.Context) ([]Status, error)
	ListVariables(ctx context.Context) ([]Variable, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection, applies pending migrations when
// auto_migrate is set and verifies the schema is current.
func (s *store) Start(ctx context.Context) error {
	db, dialect, err := Open(s.log, s.cfg)
	if err != nil {
		return err
	}

	s.db = db

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	if s.cfg.AutoMigrate {
		if err := migrations.Up(ctx, sqlDB, dialect); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	if err := migrations.CheckStatus(ctx, sqlDB, dialect); err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// Ping checks that the database is reachable.
func (s *store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.PingContext(ctx)
}

// Open connects to the configured database and applies pool settings. It
// does not touch the schema; callers that manage migrations themselves use
// it directly.
func Open(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) (*gorm.DB, migrations.Dialect, error) {
	var (
		dialector gorm.Dialector
		dialect   migrations.Dialect
	)

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(SQLiteDSN(cfg.SQLite.Path))
		dialect = migrations.SQLite
	case "postgres":
		dialector = postgres.Open(PostgresDSN(cfg.URL))
		dialect = migrations.Postgres
	default:
		return nil, "", fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(log),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, "", fmt.Errorf("getting underlying db: %w", err)
	}

	configurePool(sqlDB, cfg)

	return db, dialect, nil
}

func configurePool(sqlDB *sql.DB, cfg *config.DatabaseConfig) {
	// SQLite allows a single writer, and every in-memory connection would
	// otherwise see its own empty database.
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)

		return
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

// SQLiteDSN enables foreign key enforcement and a busy timeout on the given
// database path.
func SQLiteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// PostgresDSN accepts SQLAlchemy-style driver URLs such as
// postgresql+psycopg://, which deployments share with older tooling.
func PostgresDSN(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}

	if strings.HasPrefix(scheme, "postgresql+") || strings.HasPrefix(scheme, "postgres+") {
		return "postgres://" + rest
	}

	return url
}

// gormWriter forwards gorm's log lines to logrus at warn level.
type gormWriter struct {
	log logrus.FieldLogger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.log.Warnf(format, args...)
}

func newGormLogger(log logrus.FieldLogger) logger.Interface {
	return logger.New(
		gormWriter{log: log.WithField("component", "gorm")},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
