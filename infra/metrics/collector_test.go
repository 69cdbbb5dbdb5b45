package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rc/domain/ownership"
	"rc/infra/memory"
)

func TestCollectorReportsTracker(t *testing.T) {
	tr := ownership.NewTracker(ownership.WithMaxLive(4))
	c := NewCollector("rc", tr, nil)

	a, err := ownership.MakeShared(1, ownership.WithTracker(tr))
	require.NoError(t, err)
	defer a.Release()
	b, err := ownership.New(new(int), ownership.WithTracker(tr))
	require.NoError(t, err)
	b.Release()

	expected := `
# HELP rc_blocks_allocated_total Control blocks admitted, by variant.
# TYPE rc_blocks_allocated_total counter
rc_blocks_allocated_total{variant="inline"} 1
rc_blocks_allocated_total{variant="pointer"} 1
# HELP rc_blocks_live Control blocks currently allocated.
# TYPE rc_blocks_live gauge
rc_blocks_live 1
# HELP rc_blocks_max_live Live control block budget, 0 when unlimited.
# TYPE rc_blocks_max_live gauge
rc_blocks_max_live 4
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"rc_blocks_allocated_total", "rc_blocks_live", "rc_blocks_max_live"))
	assert.Equal(t, 8, testutil.CollectAndCount(c))
}

func TestCollectorReportsDomain(t *testing.T) {
	d := memory.NewDomain(4, zerolog.Nop())
	d.NewReader()
	d.Retire(func() {})
	c := NewCollector("rc", ownership.NewTracker(), d)

	assert.Equal(t, 13, testutil.CollectAndCount(c))
	expected := `
# HELP rc_reclaim_pending Retired payloads awaiting destruction.
# TYPE rc_reclaim_pending gauge
rc_reclaim_pending 1
# HELP rc_reclaim_readers Registered epoch readers.
# TYPE rc_reclaim_readers gauge
rc_reclaim_readers 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "rc_reclaim_pending", "rc_reclaim_readers"))
}

func TestHandlerServesMetrics(t *testing.T) {
	h, err := Handler(NewCollector("rc", ownership.NewTracker(), nil))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "rc_blocks_live 0")
}
