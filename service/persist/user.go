package persist

import (
	"context"
	"fmt"
)

// User is a stable identity keyed by wallet address, created on first reference
type User struct {
	ID           DBID         `json:"id"`
	CreationTime CreationTime `json:"created_at"`

	WalletAddress   WalletAddress `json:"wallet_address"`
	Username        NullString    `json:"username"`
	Email           NullString    `json:"email"`
	ReputationScore float64       `json:"reputation_score"`
}

// UserRepository represents the interface for interacting with persisted users
type UserRepository interface {
	GetOrCreateByWallet(context.Context, WalletAddress) (User, error)
	GetByID(context.Context, DBID) (User, error)
	GetByWallet(context.Context, WalletAddress) (User, error)
}

// ErrUserNotFoundByWallet is returned when a user is not found by wallet address
type ErrUserNotFoundByWallet struct {
	WalletAddress WalletAddress
}

func (e ErrUserNotFoundByWallet) Error() string {
	return fmt.Sprintf("user not found by wallet address: %s", e.WalletAddress)
}

// ErrUserNotFoundByID is returned when a user is not found by ID
type ErrUserNotFoundByID struct {
	ID DBID
}

func (e ErrUserNotFoundByID) Error() string {
	return fmt.Sprintf("user not found by id: %s", e.ID)
}
