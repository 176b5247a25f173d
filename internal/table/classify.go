package table

import "strings"

// Temperature bands in °C, checked top down.
const (
	hotThreshold  = 35.0
	warmThreshold = 25.0
	mildThreshold = 15.0
)

// TemperatureClass buckets a temperature into hot, warm, mild or cold.
func TemperatureClass(tempC float64) string {
	switch {
	case tempC >= hotThreshold:
		return "hot"
	case tempC >= warmThreshold:
		return "warm"
	case tempC >= mildThreshold:
		return "mild"
	default:
		return "cold"
	}
}

// ConditionClass maps free condition text to clear, cloudy or rainy. Unknown text is cloudy.
func ConditionClass(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "sun"), strings.Contains(lower, "clear"):
		return "clear"
	case strings.Contains(lower, "cloud"):
		return "cloudy"
	case strings.Contains(lower, "rain"), strings.Contains(lower, "drizzle"), strings.Contains(lower, "storm"):
		return "rainy"
	default:
		return "cloudy"
	}
}

// UVClass buckets the UV index. A missing value yields "".
func UVClass(uv *float64) string {
	if uv == nil {
		return ""
	}
	switch {
	case *uv <= 2:
		return "low"
	case *uv <= 7:
		return "moderate"
	default:
		return "high"
	}
}

// DewPoint approximates the dew point as temp - (100 - humidity) / 5.
func DewPoint(tempC, humidity float64) float64 {
	return tempC - (100-humidity)/5
}
