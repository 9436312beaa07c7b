package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fraudguard-labs/fraudguard/env"
	"github.com/fraudguard-labs/fraudguard/service/logger"
	"github.com/fraudguard-labs/fraudguard/util/retry"
	"github.com/jackc/pgconn"

	// register postgres driver
	_ "github.com/jackc/pgx/v4/stdlib"
)

func init() {
	env.RegisterValidation("POSTGRES_HOST", "required")
	env.RegisterValidation("POSTGRES_USER", "required")
	env.RegisterValidation("POSTGRES_DB", "required")
}

var DefaultConnectRetry = retry.Retry{Base: 2, Cap: 4, Tries: 3}

const (
	// creationTimeout bounds statement preparation at repository construction
	creationTimeout = 10 * time.Second

	defaultReputationScore = 50.0
)

type connectionParams struct {
	user     string
	password string
	dbname   string
	host     string
	port     int
	appname  string
	retry    *retry.Retry
}

func (c *connectionParams) toConnectionString() string {
	port := c.port
	if port == 0 {
		port = 5432
	}

	connStr := fmt.Sprintf("user=%s dbname=%s host=%s port=%d", c.user, c.dbname, c.host, port)

	// Empty passwords should be omitted so they don't interfere with other parameters
	// (e.g. "password= dbname=something" causes Postgres to ignore the dbname)
	if c.password != "" {
		connStr += fmt.Sprintf(" password=%s", c.password)
	}

	if c.appname != "" {
		connStr += fmt.Sprintf(" application_name=%s", c.appname)
	}

	return connStr
}

func newConnectionParamsFromEnv(ctx context.Context) connectionParams {
	return connectionParams{
		user:     env.GetString(ctx, "POSTGRES_USER"),
		password: env.GetString(ctx, "POSTGRES_PASSWORD"),
		dbname:   env.GetString(ctx, "POSTGRES_DB"),
		host:     env.GetString(ctx, "POSTGRES_HOST"),
		port:     env.GetInt(ctx, "POSTGRES_PORT"),

		// Retry connections by default
		retry: &DefaultConnectRetry,
	}
}

// ConnectionOption overrides a connection parameter
type ConnectionOption func(params *connectionParams)

func WithUser(user string) ConnectionOption {
	return func(params *connectionParams) {
		params.user = user
	}
}

func WithPassword(password string) ConnectionOption {
	return func(params *connectionParams) {
		params.password = password
	}
}

func WithDBName(dbname string) ConnectionOption {
	return func(params *connectionParams) {
		params.dbname = dbname
	}
}

func WithHost(host string) ConnectionOption {
	return func(params *connectionParams) {
		params.host = host
	}
}

func WithPort(port int) ConnectionOption {
	return func(params *connectionParams) {
		params.port = port
	}
}

func WithAppName(appName string) ConnectionOption {
	return func(params *connectionParams) {
		params.appname = appName
	}
}

func WithNoRetries() ConnectionOption {
	return func(params *connectionParams) {
		params.retry = nil
	}
}

// NewClient creates a new Postgres client via the pgx stdlib driver
func NewClient(opts ...ConnectionOption) *sql.DB {
	ctx := context.Background()

	params := newConnectionParamsFromEnv(ctx)
	for _, opt := range opts {
		opt(&params)
	}

	db, err := sql.Open("pgx", params.toConnectionString())
	if err != nil {
		panic(err)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	connect := func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}

	if params.retry != nil {
		err = retry.RetryFunc(ctx, connect, func(err error) bool {
			logger.For(ctx).Warnf("retrying postgres connection: %s", err)
			return true
		}, *params.retry)
	} else {
		err = connect(ctx)
	}

	if err != nil {
		panic(fmt.Sprintf("could not connect to postgres: %s", err))
	}

	return db
}

func checkNoErr(err error) {
	if err != nil {
		panic(err)
	}
}

// isTransient reports whether an error is a retriable transaction failure
// (serialization failure or deadlock).
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// isUniqueViolation reports whether an error is a unique constraint violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// runTx runs fn inside a transaction and retries exactly once when the
// transaction fails with a transient class.
func runTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	attempt := func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	}

	err := attempt()
	if err != nil && isTransient(err) {
		logger.For(ctx).Warnf("retrying transient tx failure: %s", err)
		err = attempt()
	}
	return err
}
