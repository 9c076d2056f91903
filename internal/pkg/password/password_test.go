package password

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	hash, err := Hash("hunter2secret")
	require.NoError(t, err)
	require.NotEqual(t, "hunter2secret", hash)

	require.NoError(t, Compare(hash, "hunter2secret"))
	require.Error(t, Compare(hash, "wrong"))
}
