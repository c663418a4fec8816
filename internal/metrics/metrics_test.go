package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObservePageIncrementsLabeledCounter(t *testing.T) {
	t.Parallel()
	m := New()

	m.ObservePage(OutcomeSuccess)
	m.ObservePage(OutcomeSuccess)
	m.ObservePage(OutcomeFatal)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.PagesCrawled.WithLabelValues(string(OutcomeSuccess))))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PagesCrawled.WithLabelValues(string(OutcomeFatal))))
}

func TestNewBuildsIndependentRegistries(t *testing.T) {
	t.Parallel()
	a, b := New(), New()

	a.LinksAdmitted.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.LinksAdmitted))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.LinksAdmitted))
}
