package executor

import "errors"

// Ошибки executor'ов.
var (
	// ErrUnknownTaskType — для типа task не зарегистрирован executor.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrMissingTargetURL — в task не указан target_url.
	ErrMissingTargetURL = errors.New("target_url is required")

	// ErrHTTPRequest — ошибка выполнения HTTP-запроса.
	ErrHTTPRequest = errors.New("http request failed")
)
