package telemetry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/fieldscan/internal/models"
)

const sampleTrack = `1
00:00:00,000 --> 00:00:01,000
GPS(52.1234, 4.5678)

2
00:00:01,000 --> 00:00:02,000
GPS(52.1240, 4.5690)

3
00:00:02,500 --> 00:00:03,000
GPS(52.1250, 4.5700)
`

func TestParse(t *testing.T) {
	track, err := Parse(strings.NewReader(sampleTrack))
	require.NoError(t, err)

	assert.Equal(t, Track{
		0: "GPS(52.1234, 4.5678)",
		1: "GPS(52.1240, 4.5690)",
		2: "GPS(52.1250, 4.5700)",
	}, track)
}

func TestParseIsDeterministic(t *testing.T) {
	first, err := Parse(strings.NewReader(sampleTrack))
	require.NoError(t, err)
	second, err := Parse(strings.NewReader(sampleTrack))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestParseDuplicateSecondLastWins(t *testing.T) {
	input := "1\n00:00:05,100 --> 00:00:05,400\nfirst\n\n2\n00:00:05,600 --> 00:00:06,000\nsecond\n"

	track, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, Track{5: "second"}, track)
}

func TestParseTolerance(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Track
	}{
		{
			name:  "crlf and bom",
			input: "\ufeff1\r\n00:00:07,000 --> 00:00:08,000\r\nlat 1.5 lon 2.5\r\n\r\n",
			want:  Track{7: "lat 1.5 lon 2.5"},
		},
		{
			name:  "dot separator without index",
			input: "00:01:02.999 --> 00:01:03.500\ntext\n",
			want:  Track{62: "text"},
		},
		{
			name:  "multi-line text",
			input: "1\n00:00:00,000 --> 00:00:01,000\nline one\nline two\n",
			want:  Track{0: "line one\nline two"},
		},
		{
			name:  "leading blank lines",
			input: "\n\n1\n01:00:00,000 --> 01:00:01,000\nx\n",
			want:  Track{3600: "x"},
		},
		{
			name:  "empty",
			input: "",
			want:  Track{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track, err := Parse(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, track)
		})
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"bad timing", "1\n00:00:xx,000 --> 00:00:01,000\ntext\n", 2},
		{"missing timing", "1\n", 1},
		{"garbage", "hello world\n", 1},
		{"minutes out of range", "1\n00:61:00,000 --> 00:62:00,000\nx\n", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			var formatErr *models.TrackFormatError
			require.True(t, errors.As(err, &formatErr), "got %v", err)
			assert.Equal(t, tt.line, formatErr.Line)
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.srt")
	require.NoError(t, os.WriteFile(path, []byte(sampleTrack), 0644))

	track, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, track, 3)
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "missing.srt"))

	var unreadable *models.SourceUnreadableError
	require.True(t, errors.As(err, &unreadable))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestEntries(t *testing.T) {
	entries := Entries(Track{3: "c", 0: "a", 1: "b"})

	assert.Equal(t, []models.TelemetryEntry{
		{Second: 0, Text: "a"},
		{Second: 1, Text: "b"},
		{Second: 3, Text: "c"},
	}, entries)
}
