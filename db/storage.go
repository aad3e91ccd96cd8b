package db

import (
	"context"
	"errors"

	"welfare-server-go/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrSessionNotFound   = errors.New("session not found")
)

// Storage is the relational store for households and users
type Storage interface {
	// CreateHousehold inserts h and returns it with ID and timestamps set
	CreateHousehold(ctx context.Context, h models.Household) (models.Household, error)
	GetHousehold(ctx context.Context, id int64) (models.Household, error)
	// ListHouseholds returns matching rows, newest first
	ListHouseholds(ctx context.Context, f models.Filter) ([]models.Household, error)
	// UpdateHousehold replaces the writable fields and the classification of row id
	UpdateHousehold(ctx context.Context, id int64, h models.Household) (models.Household, error)
	SetHouseholdImage(ctx context.Context, id int64, imagePath string) error
	DeleteHousehold(ctx context.Context, id int64) (models.Household, error)
	// DeleteHouseholdsByName removes every row with exactly this name
	DeleteHouseholdsByName(ctx context.Context, name string) ([]models.Household, error)
	CountHouseholds(ctx context.Context) (int, error)
	Summarize(ctx context.Context, f models.Filter) (models.Summary, error)

	CreateUser(ctx context.Context, u models.User) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)

	Close() error
}
