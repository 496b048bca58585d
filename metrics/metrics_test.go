package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSpecialist(t *testing.T) {
	before := testutil.ToFloat64(SpecialistResults.WithLabelValues("metrics-test", "ok"))
	RecordSpecialist("metrics-test", "ok", 0.2)
	after := testutil.ToFloat64(SpecialistResults.WithLabelValues("metrics-test", "ok"))
	assert.Equal(t, before+1, after)
}
