package postgres

import (
	"fmt"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestSQLStateClassification(t *testing.T) {
	t.Run("serialization failures and deadlocks are transient", func(t *testing.T) {
		assert.True(t, isTransient(&pgconn.PgError{Code: "40001"}))
		assert.True(t, isTransient(&pgconn.PgError{Code: "40P01"}))
		assert.True(t, isTransient(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})))
	})

	t.Run("unique violations are not transient", func(t *testing.T) {
		unique := &pgconn.PgError{Code: "23505", ConstraintName: "nfts_sui_object_id_idx"}
		assert.False(t, isTransient(unique))
		assert.True(t, isUniqueViolation(unique))
		assert.True(t, isUniqueViolation(fmt.Errorf("update: %w", unique)))
	})

	t.Run("other errors classify as neither", func(t *testing.T) {
		assert.False(t, isTransient(nil))
		assert.False(t, isUniqueViolation(nil))
		assert.False(t, isTransient(fmt.Errorf("connection refused")))
		assert.False(t, isUniqueViolation(fmt.Errorf("connection refused")))
	})
}

func TestConnectionString(t *testing.T) {
	params := connectionParams{user: "postgres", dbname: "fraudguard", host: "localhost"}
	assert.Equal(t, "user=postgres dbname=fraudguard host=localhost port=5432", params.toConnectionString())

	params.password = "secret"
	params.port = 5433
	params.appname = "fraudguard-api"
	assert.Equal(t, "user=postgres dbname=fraudguard host=localhost port=5433 password=secret application_name=fraudguard-api", params.toConnectionString())
}
