// Package proxy реализует пул прокси-серверов и ротацию между ними.
//
// Pool владеет записями о прокси и их счётчиками; Rotator выбирает
// следующий прокси по настраиваемой стратегии и транслирует исходы
// запросов обратно в пул. HealthChecker периодически пробует прокси
// и обновляет их здоровье.
package proxy
