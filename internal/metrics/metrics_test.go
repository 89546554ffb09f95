package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func value(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	assert.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestRecorder_Counts(t *testing.T) {
	r := NewRecorder()

	before := value(t, rowsParsed.WithLabelValues("csv"))
	r.RecordRowsParsed("csv", 3)
	assert.Equal(t, before+3, value(t, rowsParsed.WithLabelValues("csv")))

	beforeErr := value(t, rowErrors.WithLabelValues("validate"))
	r.RecordRowErrors("validate", 0)
	r.RecordRowErrors("validate", 2)
	assert.Equal(t, beforeErr+2, value(t, rowErrors.WithLabelValues("validate")))

	beforeNew := value(t, classifications.WithLabelValues("new"))
	beforeUnchanged := value(t, classifications.WithLabelValues("unchanged"))
	r.RecordClassifications(4, 1, 0, 0, 2)
	assert.Equal(t, beforeNew+4, value(t, classifications.WithLabelValues("new")))
	assert.Equal(t, beforeUnchanged+2, value(t, classifications.WithLabelValues("unchanged")))

	beforeFail := value(t, importsFailed.WithLabelValues("json"))
	r.RecordImport("json", 10*time.Millisecond, false)
	r.RecordImport("json", 10*time.Millisecond, true)
	assert.Equal(t, beforeFail+1, value(t, importsFailed.WithLabelValues("json")))
}
