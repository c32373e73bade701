// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений
//   - submit.go     — приём submissions в Orchestrator
//
// Типы сообщений:
//   - task.submit — заявка на выполнение task
//   - task.event  — событие жизненного цикла task
//
// Exchanges:
//   - harvester.tasks — submissions и события tasks
//   - harvester.dlq   — dead letter queue
package mq
