package checksum_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packwright/core/internal/checksum"
)

func TestSumReaderMatchesSum(t *testing.T) {
	data := []byte("hello, hex")
	want := checksum.Sum(data)
	got, err := checksum.SumReader(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.True(t, checksum.Equal(want, got))
}

func TestHexRoundTrip(t *testing.T) {
	sum := checksum.Sum([]byte("demo"))
	hexStr := checksum.Hex(sum)
	assert.Len(t, hexStr, checksum.Size*2)

	parsed, err := checksum.ParseHex(hexStr)
	require.NoError(t, err)
	assert.True(t, checksum.Equal(sum, parsed))
}

func TestParseHexWrongLength(t *testing.T) {
	_, err := checksum.ParseHex("abcd")
	require.Error(t, err)
}

func TestParseHexInvalid(t *testing.T) {
	_, err := checksum.ParseHex("not-hex-at-all-zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")
	require.Error(t, err)
}
