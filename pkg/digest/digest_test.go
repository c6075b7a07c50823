package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumKnownAlgorithms(t *testing.T) {
	data := []byte("hello mdoc")

	for _, alg := range []Algorithm{SHA256, SHA384, SHA512} {
		t.Run(string(alg), func(t *testing.T) {
			sum, err := Sum(alg, data)
			require.NoError(t, err)
			assert.NotEmpty(t, sum)

			again, err := Sum(alg, data)
			require.NoError(t, err)
			assert.Equal(t, sum, again, "hashing must be deterministic")
		})
	}
}

func TestSumUnsupportedAlgorithm(t *testing.T) {
	_, err := Sum(Algorithm("SHA-1"), []byte("x"))
	assert.Error(t, err)
}

func TestAlgorithmValid(t *testing.T) {
	assert.True(t, SHA256.Valid())
	assert.True(t, SHA384.Valid())
	assert.True(t, SHA512.Valid())
	assert.False(t, Algorithm("SHA-1").Valid())
	assert.False(t, Algorithm("").Valid())
}

func TestSumDifferentInputsDiffer(t *testing.T) {
	a, err := Sum(SHA256, []byte("a"))
	require.NoError(t, err)
	b, err := Sum(SHA256, []byte("b"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
