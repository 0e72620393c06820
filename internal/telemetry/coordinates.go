package telemetry

import (
	"regexp"
	"strconv"

	"github.com/bdougie/fieldscan/internal/models"
)

var decimalPattern = regexp.MustCompile(`-?\d+\.\d+`)

// ParseCoordinates takes the first two signed decimal numbers in text as
// latitude and longitude. It returns nil when fewer than two are present.
//
// The values are not range checked: a cue that carries altitude or speed
// ahead of the GPS fix will be misread.
func ParseCoordinates(text string) *models.GeoPoint {
	numbers := decimalPattern.FindAllString(text, 2)
	if len(numbers) < 2 {
		return nil
	}

	lat, err := strconv.ParseFloat(numbers[0], 64)
	if err != nil {
		return nil
	}
	lon, err := strconv.ParseFloat(numbers[1], 64)
	if err != nil {
		return nil
	}

	return &models.GeoPoint{Latitude: lat, Longitude: lon}
}
