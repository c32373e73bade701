// Package executor реализует выполнение tasks по их типу.
//
// Registry диспетчеризует task к executor'у его типа и сам реализует
// workerpool.TaskExecutor. FetchExecutor выполняет HTTP-задания
// (scrape, navigate) через ротацию прокси, под circuit breaker'ом
// на каждый целевой хост; FormExecutor отправляет формы (form_fill,
// login). Ошибки на границе пакета помечаются тегом retry.Kind.
package executor
