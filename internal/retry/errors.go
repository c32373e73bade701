package retry

import (
	"errors"
	"fmt"
)

// Kind — тег классификации ошибки выполнения.
//
// Тег присваивается на границе executor'а и проверяется по значению.
type Kind string

const (
	// KindTransient — временная ошибка (сетевой сбой, таймаут). Retryable.
	KindTransient Kind = "transient"

	// KindFatal — невосстановимая ошибка (битая конфигурация,
	// некорректный task). Не retryable.
	KindFatal Kind = "fatal"

	// KindResourceExhausted — нет свободного воркера или прокси.
	// Вызывающая сторона отступает сама, вне бюджета повторов task'а.
	KindResourceExhausted Kind = "resource_exhausted"
)

// Error — ошибка выполнения с тегом классификации.
type Error struct {
	// Kind — тег для политики повторов.
	Kind Kind

	// Err — исходная ошибка.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient оборачивает ошибку как временную.
func Transient(err error) error {
	return &Error{Kind: KindTransient, Err: err}
}

// Fatal оборачивает ошибку как невосстановимую.
func Fatal(err error) error {
	return &Error{Kind: KindFatal, Err: err}
}

// Exhausted оборачивает ошибку нехватки ресурсов.
func Exhausted(err error) error {
	return &Error{Kind: KindResourceExhausted, Err: err}
}

// KindOf извлекает тег из ошибки.
// Ошибки без тега считаются KindTransient: неклассифицированный сбой
// executor'а по умолчанию повторяется.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindTransient
}

// ErrCircuitOpen — circuit breaker открыт, операция не выполнялась.
var ErrCircuitOpen = errors.New("circuit breaker is open")
