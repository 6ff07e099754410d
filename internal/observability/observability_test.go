package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("warn", "json", &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("style fetch failed", "layer", "coastal-risk")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "coastal-risk", rec["layer"])

	_, err = NewLogger("loud", "json", &buf)
	assert.Error(t, err)
	_, err = NewLogger("info", "xml", &buf)
	assert.Error(t, err)

	buf.Reset()
	logger, err = NewLogger("debug", "text", &buf)
	require.NoError(t, err)
	logger.Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestMetricsRecorder(t *testing.T) {
	m, reg := NewMetricsForTesting()

	m.LayerRequest("vector", "hit")
	m.LayerRequest("vector", "hit")
	m.LayerRequest("cog", "missing")
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.ReprojectionFailures(3)
	m.StyleFetchFailed("coastal-risk", errors.New("timeout"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LayerRequests.WithLabelValues("vector", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LayerRequests.WithLabelValues("cog", "missing")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LayerCache.WithLabelValues("miss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ReprojectionErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StyleFetchFailures))

	n, err := testutil.GatherAndCount(reg, "climate_layer_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
