// Package retry содержит политику повторов и circuit breaker.
//
// RetryPolicy — чистое вычисление: задержка backoff по номеру попытки
// и классификация ошибок на retryable/non-retryable. Классификация
// ведётся по явным тегам Kind, которые возвращает executor, а не по
// типам ошибок.
//
// CircuitBreaker — независимый автомат Closed/Open/HalfOpen вокруг
// одного логического downstream-ресурса. Переход Open → HalfOpen
// ленивый, при чтении состояния после истечения таймаута.
package retry
