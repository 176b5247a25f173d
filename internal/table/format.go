package table

import (
	"math"
	"strconv"
	"time"
)

// Placeholder is shown when nothing is cached.
const Placeholder = "No weather data available. Click \"Refresh All\" to load data."

// Missing is printed for absent optional values.
const Missing = "--"

const (
	upstreamTimeLayout  = "2006-01-02 15:04"
	lastUpdatedLayout   = "2 January 2006, 15:04:05"
	unparseableDateText = "-"
)

// Round rounds half up, matching how the dashboard has always shown whole degrees.
func Round(v float64) int {
	return int(math.Floor(v + 0.5))
}

// FormatNumber prints v without trailing zeros.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Degrees formats a rounded temperature, e.g. "31°C".
func Degrees(v float64) string {
	return strconv.Itoa(Round(v)) + "°C"
}

// Optional formats v, or returns Missing when v is nil.
func Optional(v *float64, format func(float64) string) string {
	if v == nil {
		return Missing
	}
	return format(*v)
}

func Percent(v float64) string { return FormatNumber(v) + "%" }
func KMH(v float64) string     { return strconv.Itoa(Round(v)) + " km/h" }
func KM(v float64) string      { return FormatNumber(v) + " km" }
func HPa(v float64) string     { return FormatNumber(v) + " hPa" }

// FormatLastUpdated reformats WeatherAPI's "2006-01-02 15:04" local timestamp as
// "2 January 2006, 15:04:05". Unparseable input yields "-".
func FormatLastUpdated(s string) string {
	t, err := time.Parse(upstreamTimeLayout, s)
	if err != nil {
		return unparseableDateText
	}
	return t.Format(lastUpdatedLayout)
}
