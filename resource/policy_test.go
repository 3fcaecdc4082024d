package resource

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFetchPolicy(t *testing.T) {
	for _, valid := range []string{"store-only", "store-or-network", "store-and-network", "network-only"} {
		p, err := ParseFetchPolicy(valid)
		require.NoError(t, err)
		require.Equal(t, FetchPolicy(valid), p)
	}

	p, err := ParseFetchPolicy("")
	require.NoError(t, err)
	require.Equal(t, DefaultFetchPolicy, p)

	_, err = ParseFetchPolicy("store-then-network")
	require.Error(t, err)
}

func TestParseRenderPolicy(t *testing.T) {
	p, err := ParseRenderPolicy("partial")
	require.NoError(t, err)
	require.Equal(t, RenderPartial, p)

	p, err = ParseRenderPolicy("")
	require.NoError(t, err)
	require.Equal(t, DefaultRenderPolicy, p)

	_, err = ParseRenderPolicy("lenient")
	require.Error(t, err)
}
