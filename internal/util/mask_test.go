package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"":                        "",
		"jane.doe@example.com":    "j…@e….com",
		"  Jane.Doe@Example.COM ": "j…@e….com",
		"a@b.io":                  "a@b.io",
		"ab":                      "***",
		"opaque-value":            "o…e",
		"@example.com":            "@…m",
	}
	for in, want := range cases {
		require.Equal(t, want, MaskEmail(in), "input %q", in)
	}
}
