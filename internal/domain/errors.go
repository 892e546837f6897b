package domain

import "errors"

var (
	ErrRecordNotFound          = errors.New("record not found")
	ErrInvalidRecord           = errors.New("invalid record")
	ErrUnsupportedStoreVersion = errors.New("unsupported record store version")
	ErrNotAuthenticated        = errors.New("not authenticated")
)
