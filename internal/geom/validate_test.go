package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePoint(t *testing.T) {
	assert.NoError(t, ValidatePoint(Point{X: 1, Y: 2}))

	for _, p := range []Point{
		{X: math.NaN(), Y: 0},
		{X: 0, Y: math.NaN()},
		{X: math.Inf(1), Y: 0},
		{X: 0, Y: math.Inf(-1)},
	} {
		err := ValidatePoint(p)
		require.Error(t, err)
		assert.Equal(t, CodePointNotFinite, validationCode(t, err))
	}
}

func TestValidateLine_Valid(t *testing.T) {
	tests := []struct {
		name string
		line Line
	}{
		{"straight", Line{{X: 0, Y: 0}, {X: 10, Y: 0}}},
		{"with vertices", Line{{X: 0, Y: 0}, {X: 5, Y: 5}, {X: 10, Y: 0}}},
		{"ends exactly tolerance apart", Line{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0.01, Y: 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, ValidateLine(tt.line, 0.01))
		})
	}
}

func TestValidateLine_Invalid(t *testing.T) {
	tests := []struct {
		name string
		line Line
		want ValidationCode
	}{
		{
			name: "too few points",
			line: Line{{X: 0, Y: 0}},
			want: CodeLineHasTooFewPoints,
		},
		{
			name: "closed ring",
			line: Line{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 5, Y: 5}, {X: 0, Y: 0}},
			want: CodeLineIsClosed,
		},
		{
			name: "self-intersecting",
			line: Line{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 5, Y: 5}, {X: 5, Y: -5}},
			want: CodeLineIsNotSimple,
		},
		{
			name: "ends closer than tolerance",
			line: Line{{X: 0, Y: 0}, {X: 5, Y: 5}, {X: 0.005, Y: 0}},
			want: CodeLineEndsCloserThanTolerance,
		},
		{
			name: "end grazes non-adjacent edge",
			line: Line{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 5}, {X: 5, Y: 0.005}},
			want: CodeLineEndsCloserToEdgeThanTolerance,
		},
		{
			name: "nan vertex",
			line: Line{{X: 0, Y: 0}, {X: math.NaN(), Y: 1}},
			want: CodePointNotFinite,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLine(tt.line, 0.01)
			require.Error(t, err)
			assert.Equal(t, tt.want, validationCode(t, err))
		})
	}
}

func TestValidateLine_ChecksOrdered(t *testing.T) {
	// A closed line always reports LINE_IS_CLOSED even though its endpoints
	// are also closer than tolerance.
	closed := Line{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 5, Y: 5}, {X: 0, Y: 0}}
	err := ValidateLine(closed, 0.01)
	require.Error(t, err)
	assert.Equal(t, CodeLineIsClosed, validationCode(t, err))
}

func validationCode(t *testing.T, err error) ValidationCode {
	t.Helper()
	ve, ok := err.(*ValidationError)
	require.True(t, ok, "expected *ValidationError, got %T", err)
	return ve.Code
}
