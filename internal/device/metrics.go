package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	allocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashtensor_device_allocations_total",
		Help: "Total number of buffers allocated per device",
	}, []string{"device"})

	releasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashtensor_device_releases_total",
		Help: "Total number of buffers released per device",
	}, []string{"device"})

	allocationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashtensor_device_allocation_failures_total",
		Help: "Total number of failed buffer allocations per device",
	}, []string{"device"})

	liveBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flashtensor_device_live_bytes",
		Help: "Bytes currently allocated per device",
	}, []string{"device"})

	poolHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashtensor_pool_hits_total",
		Help: "Total number of allocations served from the buffer pool",
	}, []string{"device"})

	poolMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashtensor_pool_misses_total",
		Help: "Total number of buffer pool misses (fresh allocations)",
	}, []string{"device"})

	poolBuffers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flashtensor_pool_buffers_count",
		Help: "Current number of buffers held by the pool",
	}, []string{"device"})
)
