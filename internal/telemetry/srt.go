// Package telemetry reads the subtitle track a drone records next to its video
// and decodes the GPS position embedded in each cue.
package telemetry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bdougie/fieldscan/internal/models"
)

// Track maps a whole second of video to the raw text of the cue starting in it.
type Track map[int]string

var (
	timingPattern = regexp.MustCompile(`^(\d+):(\d{1,2}):(\d{1,2})[,.](\d{1,3})\s*-->\s*(\d+):(\d{1,2}):(\d{1,2})[,.](\d{1,3})`)
	indexPattern  = regexp.MustCompile(`^\d+$`)
)

// ParseFile opens and parses an SRT track.
func ParseFile(path string) (Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &models.SourceUnreadableError{Path: path, Err: err}
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads SRT cues from r. A later cue that truncates to the same second
// replaces an earlier one. An empty track is not an error.
func Parse(r io.Reader) (Track, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	track := Track{}
	lineNum := 0
	inCue := false
	expectTiming := false
	start := 0
	var text []string

	flush := func() {
		track[start/1000] = strings.TrimSpace(strings.Join(text, "\n"))
		text = text[:0]
		inCue = false
	}

	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		trimmed := strings.TrimSpace(line)

		switch {
		case inCue:
			if trimmed == "" {
				flush()
				continue
			}
			text = append(text, trimmed)

		case expectTiming:
			ms, err := parseTiming(trimmed)
			if err != nil {
				return nil, &models.TrackFormatError{Line: lineNum, Reason: err.Error()}
			}
			start = ms
			expectTiming = false
			inCue = true

		case trimmed == "":
			continue

		case indexPattern.MatchString(trimmed):
			expectTiming = true

		case strings.Contains(trimmed, "-->"):
			ms, err := parseTiming(trimmed)
			if err != nil {
				return nil, &models.TrackFormatError{Line: lineNum, Reason: err.Error()}
			}
			start = ms
			inCue = true

		default:
			return nil, &models.TrackFormatError{Line: lineNum, Reason: fmt.Sprintf("expected cue index or timing, got %q", trimmed)}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &models.TrackFormatError{Line: lineNum, Reason: err.Error()}
	}

	if expectTiming {
		return nil, &models.TrackFormatError{Line: lineNum, Reason: "cue without timing"}
	}
	if inCue {
		flush()
	}

	return track, nil
}

// parseTiming returns the start of a cue timing line in milliseconds.
func parseTiming(line string) (int, error) {
	m := timingPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, fmt.Errorf("invalid timing line %q", line)
	}

	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	if minutes > 59 || seconds > 59 {
		return 0, fmt.Errorf("invalid timestamp in %q", line)
	}
	// "5" after the separator means 500ms, not 5ms.
	fraction := m[4] + strings.Repeat("0", 3-len(m[4]))
	millis, _ := strconv.Atoi(fraction)

	return ((hours*60+minutes)*60+seconds)*1000 + millis, nil
}

// Entries returns the track as entries ordered by second.
func Entries(track Track) []models.TelemetryEntry {
	entries := make([]models.TelemetryEntry, 0, len(track))
	for sec, text := range track {
		entries = append(entries, models.TelemetryEntry{Second: sec, Text: text})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Second < entries[j].Second })
	return entries
}
