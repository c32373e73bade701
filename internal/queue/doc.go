// Package queue содержит in-memory приоритетную очередь tasks.
//
// Очередь отдаёт task с наибольшим приоритетом; при равном приоритете —
// в порядке поступления (монотонный sequence number, а не случайный id).
// Put идемпотентен по task ID: task, уже находящийся в очереди,
// повторно не добавляется.
package queue
