package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint([]byte(`{"type":"Point","coordinates":[565000.5,6200000.25]}`))
	require.NoError(t, err)
	assert.Equal(t, Point{X: 565000.5, Y: 6200000.25}, p)
}

func TestParsePoint_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"wrong type", `{"type":"LineString","coordinates":[[0,0],[1,1]]}`},
		{"too few ordinates", `{"type":"Point","coordinates":[1]}`},
		{"garbage", `not json`},
		{"coordinates not numbers", `{"type":"Point","coordinates":["a","b"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePoint([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestParseLine(t *testing.T) {
	l, err := ParseLine([]byte(`{"type":"LineString","coordinates":[[0,0],[5,5],[10,0]]}`))
	require.NoError(t, err)
	assert.Equal(t, Line{{X: 0, Y: 0}, {X: 5, Y: 5}, {X: 10, Y: 0}}, l)
}

func TestParseLine_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"wrong type", `{"type":"Point","coordinates":[1,2]}`},
		{"single vertex", `{"type":"LineString","coordinates":[[0,0]]}`},
		{"vertex with one ordinate", `{"type":"LineString","coordinates":[[0,0],[1]]}`},
		{"garbage", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestFormatPoint_RoundTrip(t *testing.T) {
	orig := Point{X: 565000.5, Y: 6200000.25}
	parsed, err := ParsePoint(FormatPoint(orig))
	require.NoError(t, err)
	assert.Equal(t, orig, parsed)
}

func TestFormatLine_RoundTrip(t *testing.T) {
	orig := Line{{X: 0, Y: 0}, {X: 5.5, Y: -2.25}, {X: 10, Y: 0}}
	parsed, err := ParseLine(FormatLine(orig))
	require.NoError(t, err)
	assert.Equal(t, orig, parsed)
}
