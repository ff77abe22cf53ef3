package postgres

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/Bruno7kp/gestor-de-obras-sub001/pkg/metrics"
)

func TestTrackCountsOperationsByResult(t *testing.T) {
	m := &metrics.Metrics{
		DatabaseOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "database_operations_total",
		}, []string{"operation", "result"}),
	}
	base := NewBaseRepository(nil, m)

	base.track("notifications.insert", nil)
	base.track("notifications.insert", nil)
	base.track("notifications.insert", errors.New("connection reset"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DatabaseOperations.WithLabelValues("notifications.insert", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatabaseOperations.WithLabelValues("notifications.insert", "error")))
}

func TestTrackWithoutMetricsIsNoop(t *testing.T) {
	base := NewBaseRepository(nil, nil)
	assert.NotPanics(t, func() {
		base.track("notifications.insert", nil)
	})
}
