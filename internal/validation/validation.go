package validation

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ErrLocatorEmpty is returned when the locator is empty or whitespace-only after trim.
var ErrLocatorEmpty = errors.New("locator is required")

// ErrLocatorTooLong is returned when the locator length exceeds the maximum.
var ErrLocatorTooLong = errors.New("locator too long")

// ErrLocatorInvalidChars is returned when a place name contains disallowed characters.
var ErrLocatorInvalidChars = errors.New("locator contains invalid characters")

// ErrCoordinatesOutOfRange is returned for a "lat,lon" pair outside [-90,90] x [-180,180].
var ErrCoordinatesOutOfRange = errors.New("coordinates out of range")

// Locator identifies a weather API query target: a free-text place name or a
// "latitude,longitude" pair.
type Locator struct {
	Query       string
	Coordinates bool
	Lat         float64
	Lon         float64
}

// String returns the value passed to the API as the q parameter.
func (l Locator) String() string {
	return l.Query
}

// FromCoordinates builds a coordinate locator formatted as "lat,lon".
func FromCoordinates(lat, lon float64) (Locator, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Locator{}, ErrCoordinatesOutOfRange
	}
	q := strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
	return Locator{Query: q, Coordinates: true, Lat: lat, Lon: lon}, nil
}

// ParseLocator trims the input and classifies it. Two comma-separated numbers
// become a coordinate locator; anything else must be a place name made of letters,
// digits, space, comma, period, apostrophe or hyphen. maxLen counts runes (0 = no limit).
func ParseLocator(input string, maxLen int) (Locator, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return Locator{}, ErrLocatorEmpty
	}
	if maxLen > 0 && len(r) > maxLen {
		return Locator{}, ErrLocatorTooLong
	}
	if lat, lon, ok := splitCoordinates(s); ok {
		loc, err := FromCoordinates(lat, lon)
		if err != nil {
			return Locator{}, err
		}
		// Keep the caller's spelling so the query matches what was typed.
		loc.Query = s
		return loc, nil
	}
	for _, c := range r {
		if !isAllowedPlaceRune(c) {
			return Locator{}, ErrLocatorInvalidChars
		}
	}
	return Locator{Query: s}, nil
}

func splitCoordinates(s string) (lat, lon float64, ok bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

func isAllowedPlaceRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
