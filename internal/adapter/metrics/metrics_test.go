package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/chatrelay/internal/platform/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_ExposesBuildInfo(t *testing.T) {
	info := version.Info{Version: "v1.2.0", Commit: "abc1234", GoVersion: "go1.23.4", Role: "server", InstanceID: "server-1a2b3c4d"}
	reg := NewRegistry(info)

	expected := `
# HELP chatrelay_build_info Build and identity of this relay process. Always 1.
# TYPE chatrelay_build_info gauge
chatrelay_build_info{commit="abc1234",go_version="go1.23.4",instance_id="server-1a2b3c4d",role="server",version="v1.2.0"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "chatrelay_build_info"))
}

func TestHandler_ServesRegistryAndCountsScrapes(t *testing.T) {
	reg := NewRegistry(version.ForInstance("tools", "tools-1"))
	m := NewCoordinatorMetrics(reg)
	m.Requests.WithLabelValues("generic").Inc()

	handler := Handler(reg)
	for range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `chatrelay_coordinator_requests_total{kind="generic"} 1`)
		assert.Contains(t, rec.Body.String(), `role="tools"`)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("generic")))
	count, err := testutil.GatherAndCount(reg, "promhttp_metric_handler_requests_total")
	require.NoError(t, err)
	assert.Positive(t, count)
}
