package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRationalFromString(t *testing.T) {
	tests := []struct {
		input          string
		expectedNum    int
		expectedDen    int
		expectingError bool
	}{
		{"30", 30, 1, false},
		{"30/1", 30, 1, false},
		{"30000/1001", 30000, 1001, false}, // NTSC
		{"~23.976", 24000, 1001, false},    // NTSC
		{"~29.97", 30000, 1001, false},     // NTSC
		{"~29.93", 2993, 100, false},
		{"~25", 25, 1, false},
		{"12.5", 25, 2, false},
		{"0.75", 3, 4, false},
		{"1/0", 0, 0, true},
		{"", 0, 0, true},
		{"invalid", 0, 0, true},
		{"10/invalid", 0, 0, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			rational, err := RationalFromString(test.input)
			if test.expectingError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.expectedNum, rational.Num)
			require.Equal(t, test.expectedDen, rational.Den)
		})
	}
}

func TestRationalNormalized(t *testing.T) {
	require.Equal(t, Rational{Num: 5, Den: 2}, Rational{Num: 10, Den: 4}.Normalized())
	require.Equal(t, Rational{Num: -3, Den: 1}, Rational{Num: 3, Den: -1}.Normalized())
	require.True(t, Rational{Num: 25, Den: 1}.IsPositive())
	require.False(t, Rational{Num: 25, Den: 0}.IsPositive())
	require.False(t, Rational{Num: -25, Den: 1}.IsPositive())
}

func TestRationalEncodings(t *testing.T) {
	type cfg struct {
		FPS Rational `json:"fps" yaml:"fps"`
	}

	var fromYAML cfg
	require.NoError(t, yaml.Unmarshal([]byte("fps: 30000/1001\n"), &fromYAML))
	require.Equal(t, Rational{Num: 30000, Den: 1001}, fromYAML.FPS)

	require.NoError(t, yaml.Unmarshal([]byte("fps: 25\n"), &fromYAML))
	require.Equal(t, Rational{Num: 25, Den: 1}, fromYAML.FPS)

	b, err := json.Marshal(cfg{FPS: Rational{Num: 24, Den: 1}})
	require.NoError(t, err)
	require.JSONEq(t, `{"fps":"24/1"}`, string(b))

	var fromJSON cfg
	require.NoError(t, json.Unmarshal(b, &fromJSON))
	require.Equal(t, Rational{Num: 24, Den: 1}, fromJSON.FPS)
}
