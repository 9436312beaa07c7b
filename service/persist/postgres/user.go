package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fraudguard-labs/fraudguard/service/persist"
)

// UserRepository is a repository that stores users in a postgres database
type UserRepository struct {
	db *sql.DB

	getByIDStmt     *sql.Stmt
	getByWalletStmt *sql.Stmt
	createStmt      *sql.Stmt
}

// NewUserRepository creates a new postgres repository for interacting with users
func NewUserRepository(db *sql.DB) *UserRepository {
	ctx, cancel := context.WithTimeout(context.Background(), creationTimeout)
	defer cancel()

	getByIDStmt, err := db.PrepareContext(ctx, `SELECT ID,CREATED_AT,WALLET_ADDRESS,USERNAME,EMAIL,REPUTATION_SCORE FROM users WHERE ID = $1 AND DELETED = false;`)
	checkNoErr(err)

	getByWalletStmt, err := db.PrepareContext(ctx, `SELECT ID,CREATED_AT,WALLET_ADDRESS,USERNAME,EMAIL,REPUTATION_SCORE FROM users WHERE WALLET_ADDRESS = $1 AND DELETED = false;`)
	checkNoErr(err)

	createStmt, err := db.PrepareContext(ctx, `INSERT INTO users (ID,WALLET_ADDRESS,REPUTATION_SCORE) VALUES ($1,$2,$3)
		ON CONFLICT (WALLET_ADDRESS) DO UPDATE SET LAST_UPDATED = now()
		RETURNING ID,CREATED_AT,WALLET_ADDRESS,USERNAME,EMAIL,REPUTATION_SCORE;`)
	checkNoErr(err)

	return &UserRepository{
		db:              db,
		getByIDStmt:     getByIDStmt,
		getByWalletStmt: getByWalletStmt,
		createStmt:      createStmt,
	}
}

// GetOrCreateByWallet returns the user owning the given wallet address,
// creating one with a default reputation when none exists. The upsert makes
// concurrent first references converge on a single row.
func (u *UserRepository) GetOrCreateByWallet(ctx context.Context, wallet persist.WalletAddress) (persist.User, error) {
	user := persist.User{}
	err := u.createStmt.QueryRowContext(ctx, persist.GenerateID(), wallet, defaultReputationScore).Scan(&user.ID, &user.CreationTime, &user.WalletAddress, &user.Username, &user.Email, &user.ReputationScore)
	if err != nil {
		return persist.User{}, err
	}
	return user, nil
}

// GetByID returns a user by its ID
func (u *UserRepository) GetByID(ctx context.Context, id persist.DBID) (persist.User, error) {
	user := persist.User{}
	err := u.getByIDStmt.QueryRowContext(ctx, id).Scan(&user.ID, &user.CreationTime, &user.WalletAddress, &user.Username, &user.Email, &user.ReputationScore)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persist.User{}, persist.ErrUserNotFoundByID{ID: id}
		}
		return persist.User{}, err
	}
	return user, nil
}

// GetByWallet returns the user owning the given wallet address
func (u *UserRepository) GetByWallet(ctx context.Context, wallet persist.WalletAddress) (persist.User, error) {
	user := persist.User{}
	err := u.getByWalletStmt.QueryRowContext(ctx, wallet).Scan(&user.ID, &user.CreationTime, &user.WalletAddress, &user.Username, &user.Email, &user.ReputationScore)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persist.User{}, persist.ErrUserNotFoundByWallet{WalletAddress: wallet}
		}
		return persist.User{}, err
	}
	return user, nil
}
