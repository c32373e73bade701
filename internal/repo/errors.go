package repo

import "errors"

// Общие ошибки репозитория.
var (
	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")
)
