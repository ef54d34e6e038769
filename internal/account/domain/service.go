package domain

import (
	"context"
	"errors"
)

type GetOrCreateRequest struct {
	UserID      int64
	Username    string
	FirstName   string
	Attribution Attribution
}

type GetOrCreateResponse struct {
	Account Account `json:"account"`
	Created bool    `json:"created"`
}

type Service interface {
	GetOrCreate(ctx context.Context, req GetOrCreateRequest) (GetOrCreateResponse, error)
	GetByUserID(ctx context.Context, userID int64) (Account, error)
}

var (
	ErrInvalidUserID = errors.New("invalid_user_id")
	ErrNotFound      = errors.New("not_found")
)
