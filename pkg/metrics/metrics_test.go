package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTokens(t *testing.T) {
	in := TokenUsageTotal.WithLabelValues("openai", "metrics-test", "input")
	out := TokenUsageTotal.WithLabelValues("openai", "metrics-test", "output")
	before := testutil.ToFloat64(in)

	RecordTokens("openai", "metrics-test", 12, 0)
	RecordTokens("openai", "metrics-test", 3, 40)

	assert.Equal(t, before+15, testutil.ToFloat64(in))
	assert.Equal(t, 40.0, testutil.ToFloat64(out))
}
