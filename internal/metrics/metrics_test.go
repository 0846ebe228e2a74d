package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.Fetch("dexscreener", "ok")
		r.Candidates("dexscreener", 3)
		r.Rejected("liquidity")
		r.Cycle(time.Second)
		r.Skipped("scan")
		r.Dispatch("sent")
		r.Report("sent")
		r.Save(true)
		r.StateSize(1, 2)
		_ = r.Handler()
	})
}

func TestCollectorsRecord(t *testing.T) {
	r := New()

	r.Rejected("liquidity")
	r.Rejected("liquidity")
	r.Save(false)
	r.StateSize(4, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.FilterRejections.WithLabelValues("liquidity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StateSaves.WithLabelValues("error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.AlertedSize))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.TrackingSize))

	n, err := testutil.GatherAndCount(r.Gatherer(), "gemcaller_filter_rejections_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
