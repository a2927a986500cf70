package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	accountdomain "github.com/smallbiznis/revenue/internal/account/domain"
	auditdomain "github.com/smallbiznis/revenue/internal/audit/domain"
	billingdomain "github.com/smallbiznis/revenue/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/revenue/internal/catalog/domain"
	paymentdomain "github.com/smallbiznis/revenue/internal/payment/domain"
	userdomain "github.com/smallbiznis/revenue/internal/user/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

var ErrUnsupportedDialect = errors.New("unsupported_migration_dialect")

// Models lists every table owned by the portal, in dependency order.
func Models() []any {
	return []any{
		&userdomain.User{},
		&catalogdomain.ServiceDefinition{},
		&accountdomain.ServiceAccount{},
		&accountdomain.MeterReading{},
		&billingdomain.Bill{},
		&paymentdomain.Payment{},
		&paymentdomain.EventRecord{},
		&auditdomain.AuditLog{},
	}
}

// Migrate brings the schema up to date. Postgres runs the versioned SQL
// migrations; SQLite (local and test setups) uses AutoMigrate.
func Migrate(conn *gorm.DB, dbType string) error {
	switch dbType {
	case "postgres":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	case "sqlite", "sqlite-pure":
		return conn.AutoMigrate(Models()...)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDialect, dbType)
	}
}

func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// migrator.Close would close the shared *sql.DB

	return nil
}
