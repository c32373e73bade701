// Package orchestrator управляет жизненным циклом tasks.
//
// Orchestrator — центральный компонент системы, который:
//   - Принимает tasks (напрямую или из очереди submissions)
//   - Держит их в приоритетной очереди
//   - Диспетчеризует на пул воркеров, не блокируя цикл диспетчеризации
//   - Повторяет упавшие tasks с backoff через отложенную перепостановку
//   - Финализирует tasks (SUCCESS/FAILED) в TaskStore
//   - Рассылает события жизненного цикла подписчикам
//
// Backoff одного task никогда не задерживает диспетчеризацию других:
// отложенные повторы обслуживает отдельная горутина с min-heap
// времён готовности.
package orchestrator
