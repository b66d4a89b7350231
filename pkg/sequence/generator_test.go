package sequence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatCode(t *testing.T) {
	require.Equal(t, "ORD-250301-001AB", FormatCode("ORD", "250301", 1, "AB"))
	require.Equal(t, "ORD-250301-0A0XY", FormatCode("ORD", "250301", 360, "XY"))
	require.Equal(t, "ORD-250301-RS0", FormatCode("ORD", "250301", 36000, ""))
}

func TestRandomAlphaNumeric(t *testing.T) {
	s := randomAlphaNumeric(8)
	require.Len(t, s, 8)
	require.NotContains(t, s, "0")
	require.NotContains(t, s, "O")
}
