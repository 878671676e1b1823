package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnionStrings(t *testing.T) {
	t.Run("appends only new values", func(t *testing.T) {
		out := unionStrings([]string{"a", "b"}, []string{"b", "c"})
		require.Equal(t, []string{"a", "b", "c"}, out)
	})

	t.Run("preserves existing order", func(t *testing.T) {
		out := unionStrings([]string{"z", "a"}, []string{"m"})
		require.Equal(t, []string{"z", "a", "m"}, out)
	})

	t.Run("skips empty strings", func(t *testing.T) {
		out := unionStrings(nil, []string{"", "a", ""})
		require.Equal(t, []string{"a"}, out)
	})

	t.Run("idempotent", func(t *testing.T) {
		once := unionStrings([]string{"a"}, []string{"b"})
		twice := unionStrings(once, []string{"b"})
		require.Equal(t, once, twice)
	})
}
