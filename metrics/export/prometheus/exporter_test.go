package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alebarre/credauth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshot credauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() credauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func newSource() fakeSource {
	return fakeSource{
		snapshot: credauth.MetricsSnapshot{
			Counters: map[credauth.MetricID]uint64{
				credauth.MetricLoginSuccess: 7,
				credauth.MetricLoginLocked:  2,
			},
			Histograms: map[credauth.MetricID][]uint64{
				credauth.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 3,
	}
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollector(newSource())

	expected := `
# HELP credauth_login_success_total Successful logins.
# TYPE credauth_login_success_total counter
credauth_login_success_total 7
# HELP credauth_login_locked_total Login attempts refused by the lockout.
# TYPE credauth_login_locked_total counter
credauth_login_locked_total 2
# HELP credauth_audit_dropped_total Audit events dropped because the dispatcher buffer was full.
# TYPE credauth_audit_dropped_total counter
credauth_audit_dropped_total 3
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"credauth_login_success_total", "credauth_login_locked_total", "credauth_audit_dropped_total")
	require.NoError(t, err)
}

func TestCollectorHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(newSource())))

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() != "credauth_validate_latency_seconds" {
			continue
		}
		found = true
		h := mf.GetMetric()[0].GetHistogram()
		assert.Equal(t, uint64(36), h.GetSampleCount())
		require.Len(t, h.GetBucket(), 7)
		assert.Equal(t, uint64(1), h.GetBucket()[0].GetCumulativeCount())
		assert.Equal(t, uint64(28), h.GetBucket()[6].GetCumulativeCount())
	}
	assert.True(t, found, "latency histogram should be exported")
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	h, err := Handler(newSource())
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "credauth_login_success_total 7")
	assert.Contains(t, string(body), `credauth_validate_latency_seconds_bucket{le="+Inf"} 36`)
}
