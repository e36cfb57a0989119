package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	at := time.Unix(1700000000, 0)

	r.Rollup("weekly", "early", 5, at)
	r.Rollup("weekly", "early", 5, at.Add(time.Hour))
	r.Rollup("weekly", "periodic", 2, at.Add(2*time.Hour))
	r.Failure("monthly", "duplicate_artifact")
	r.Pending("monthly", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.RollupsTotal.WithLabelValues("weekly", "early")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RollupsTotal.WithLabelValues("weekly", "periodic")))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.ItemsRolledTotal.WithLabelValues("weekly")))
	assert.Equal(t, float64(at.Add(2*time.Hour).Unix()), testutil.ToFloat64(r.LastRolloverSeconds.WithLabelValues("weekly")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FailuresTotal.WithLabelValues("monthly", "duplicate_artifact")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.ShadowPending.WithLabelValues("monthly")))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Rollup("weekly", "early", 1, time.Now())
	r.Failure("weekly", "io")
	r.Pending("weekly", 1)
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile("/nonexistent/path.prom"))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.Rollup("weekly", "early", 5, time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "episodic.prom")
	require.NoError(t, r.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `episodic_rollups_total{level="weekly",reason="early"} 1`)
	assert.Contains(t, string(content), `episodic_items_rolled_total{level="weekly"} 5`)
}
