package migrate

import (
	"database/sql"

	"github.com/golang-migrate/migrate/v4"
	pgdriver "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/fraudguard-labs/fraudguard/service/persist/postgres"

	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunCoreDBMigration migrates the core database to the latest version
func RunCoreDBMigration() error {
	client := postgres.NewClient()
	defer client.Close()

	m, err := newMigrateInstance(client, "./db/migrations/core")
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// RunMigration runs all migrations in the specified directory
func RunMigration(client *sql.DB, dir string) error {
	m, err := newMigrateInstance(client, dir)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func newMigrateInstance(client *sql.DB, dir string) (*migrate.Migrate, error) {
	d, err := pgdriver.WithInstance(client, &pgdriver.Config{})
	if err != nil {
		return nil, err
	}

	return migrate.NewWithDatabaseInstance("file://"+dir, "postgres", d)
}
