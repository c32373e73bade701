package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/Harvester/internal/orchestrator"
)

// Метрики жизненного цикла tasks. Регистрируются в default registry,
// отдаются через promhttp на /metrics.
var (
	tasksStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_tasks_started_total",
		Help: "Количество tasks, взятых в выполнение.",
	})

	tasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_tasks_completed_total",
		Help: "Количество успешно завершённых tasks.",
	})

	tasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_tasks_failed_total",
		Help: "Количество окончательно упавших tasks.",
	})

	tasksRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_tasks_retried_total",
		Help: "Количество постановок tasks на повтор.",
	})

	itemsScraped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_items_scraped_total",
		Help: "Суммарное количество извлечённых элементов.",
	})

	taskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvester_task_duration_seconds",
		Help:    "Продолжительность выполнения task.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s .. ~3.4min
	})

	queueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvester_queue_size",
		Help: "Количество tasks в очереди диспетчеризации.",
	})

	pendingRetries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvester_pending_retries",
		Help: "Количество tasks, ожидающих повтора с backoff.",
	})

	busyWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvester_busy_workers",
		Help: "Количество воркеров, выполняющих task.",
	})

	healthyProxies = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvester_healthy_proxies",
		Help: "Количество здоровых прокси в пуле.",
	})
)

// RegisterMetricsListeners подписывает счётчики на шину событий
// оркестратора.
func RegisterMetricsListeners(bus *orchestrator.EventBus) {
	bus.Subscribe(orchestrator.EventTaskStarted, func(orchestrator.Event) {
		tasksStarted.Inc()
	})

	bus.Subscribe(orchestrator.EventTaskCompleted, func(evt orchestrator.Event) {
		tasksCompleted.Inc()
		itemsScraped.Add(float64(evt.Task.ItemsScraped))
		if d := evt.Task.Duration(); d > 0 {
			taskDuration.Observe(d.Seconds())
		}
	})

	bus.Subscribe(orchestrator.EventTaskFailed, func(evt orchestrator.Event) {
		tasksFailed.Inc()
		if d := evt.Task.Duration(); d > 0 {
			taskDuration.Observe(d.Seconds())
		}
	})

	bus.Subscribe(orchestrator.EventTaskRetry, func(orchestrator.Event) {
		tasksRetried.Inc()
	})
}

// ObserveQueueSize обновляет gauge размера очереди.
func ObserveQueueSize(size int) {
	queueSize.Set(float64(size))
}

// ObservePendingRetries обновляет gauge ожидающих повторов.
func ObservePendingRetries(count int) {
	pendingRetries.Set(float64(count))
}

// ObserveBusyWorkers обновляет gauge занятых воркеров.
func ObserveBusyWorkers(count int) {
	busyWorkers.Set(float64(count))
}

// ObserveHealthyProxies обновляет gauge здоровых прокси.
func ObserveHealthyProxies(count int) {
	healthyProxies.Set(float64(count))
}
