package tensor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var leakedHandles = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flashtensor_storage_leaked_handles_total",
	Help: "Storage handles garbage collected without Release",
}, []string{"device"})
