// Package workerpool содержит воркеров и пул с ограничителем
// конкурентности.
//
// Worker — автомат состояний (Idle/Running/Paused/Stopped/Error),
// выполняющий один task за раз через внешний TaskExecutor. Паника или
// ошибка executor'а никогда не покидает воркера: она классифицируется
// как неуспех, попадает в статистику и возвращается значением.
//
// WorkerPool владеет воркерами и семафором на max_concurrent
// одновременных выполнений. Лимит независим от размера пула: даже при
// свободных воркерах сверх лимита выполнения не стартуют.
package workerpool
