// Package cli реализует команды harvester-cli.
//
// Структура:
//   - task.go   — submit/show/list tasks и сводная статистика
//   - proxy.go  — проверка списка прокси
//   - output.go — форматирование вывода (таблица/JSON)
//
// Submissions уходят в RabbitMQ (tasks.submit); чтение статусов и
// статистики идёт напрямую из Postgres.
package cli
