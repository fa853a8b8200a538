package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistration(t *testing.T) {
	t.Run("CacheOperationsTotal", func(t *testing.T) {
		CacheOperationsTotal.WithLabelValues("get", "success").Inc()
		val := testutil.ToFloat64(CacheOperationsTotal.WithLabelValues("get", "success"))
		if val < 1 {
			t.Errorf("expected CacheOperationsTotal to be at least 1, got %v", val)
		}
	})

	t.Run("CacheOperationDuration", func(t *testing.T) {
		CacheOperationDuration.WithLabelValues("get").Observe(0.1)
	})

	t.Run("TransactionsTotal", func(t *testing.T) {
		TransactionsTotal.WithLabelValues("CREATEUSER", "committed").Inc()
		val := testutil.ToFloat64(TransactionsTotal.WithLabelValues("CREATEUSER", "committed"))
		if val < 1 {
			t.Errorf("expected TransactionsTotal to be at least 1, got %v", val)
		}
	})

	t.Run("ChatroomPlacements", func(t *testing.T) {
		ChatroomPlacements.WithLabelValues("created").Inc()
		val := testutil.ToFloat64(ChatroomPlacements.WithLabelValues("created"))
		if val < 1 {
			t.Errorf("expected ChatroomPlacements to be at least 1, got %v", val)
		}
	})

	t.Run("ActiveSubscribers", func(t *testing.T) {
		ActiveSubscribers.WithLabelValues("general").Set(3)
		val := testutil.ToFloat64(ActiveSubscribers.WithLabelValues("general"))
		if val != 3 {
			t.Errorf("expected ActiveSubscribers to be 3, got %v", val)
		}
	})
}
