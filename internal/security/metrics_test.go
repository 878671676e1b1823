package security

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestParseMetricsLabels(t *testing.T) {
	t.Run("empty input yields no labels", func(t *testing.T) {
		labels, err := ParseMetricsLabels("")
		require.NoError(t, err)
		require.Nil(t, labels)
	})

	t.Run("parses key=value pairs", func(t *testing.T) {
		labels, err := ParseMetricsLabels("service=chat-memory,env=prod")
		require.NoError(t, err)
		require.Equal(t, prometheus.Labels{"service": "chat-memory", "env": "prod"}, labels)
	})

	t.Run("expands environment variables", func(t *testing.T) {
		t.Setenv("TEST_METRICS_ENV", "staging")
		labels, err := ParseMetricsLabels("env=${TEST_METRICS_ENV}")
		require.NoError(t, err)
		require.Equal(t, "staging", labels["env"])
	})

	t.Run("rejects pair without equals", func(t *testing.T) {
		_, err := ParseMetricsLabels("service")
		require.Error(t, err)
	})

	t.Run("rejects invalid label key", func(t *testing.T) {
		_, err := ParseMetricsLabels("9service=x")
		require.Error(t, err)
	})
}
