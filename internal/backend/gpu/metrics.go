package gpu

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/born-ml/cortex/internal/backend/gpu")

var (
	kernelCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cortex_gpu_kernel_cache_lookups_total",
		Help: "Kernel cache lookups by kernel and result (hit or miss).",
	}, []string{"kernel", "result"})

	kernelCompileSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cortex_gpu_kernel_compile_seconds",
		Help:    "Time spent generating and compiling kernels.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"kernel"})

	commandsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cortex_gpu_commands_enqueued_total",
		Help: "Commands placed on backend queues.",
	}, []string{"command"})

	commandFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cortex_gpu_command_failures_total",
		Help: "Queued commands that returned an error.",
	})
)
