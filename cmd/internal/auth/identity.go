package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Credentials struct {
	Email    string
	Password string
}

type Confirmation struct {
	Email string
	Code  string
}

// Registration is what an identity provider hands back after sign up.
type Registration struct {
	Subject      string
	PasswordHash string // set by providers that keep the hash with us
	Confirmed    bool
}

// LocalProvider keeps bcrypt hashes in the account table. Accounts are
// confirmed on creation and there is nothing to revoke remotely.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (LocalProvider) SignUp(_ context.Context, creds *Credentials) (*Registration, error) {
	hash, err := HashPassword(creds.Password)
	if err != nil {
		return nil, err
	}
	return &Registration{Subject: uuid.NewString(), PasswordHash: hash, Confirmed: true}, nil
}

func (LocalProvider) Confirm(context.Context, *Confirmation) error {
	return nil
}

func (LocalProvider) SignIn(_ context.Context, creds *Credentials, passwordHash string) error {
	if passwordHash == "" || !CheckPassword(passwordHash, creds.Password) {
		return ErrInvalidCredentials
	}
	return nil
}

func (LocalProvider) ChangePassword(_ context.Context, _ string, current, proposed, passwordHash string) (string, error) {
	if !CheckPassword(passwordHash, current) {
		return "", ErrInvalidCredentials
	}
	return HashPassword(proposed)
}

func (LocalProvider) Revoke(context.Context, string) error {
	return nil
}
