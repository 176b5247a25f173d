package models

import "time"

// Location is the resolved place block WeatherAPI returns with every response.
type Location struct {
	Name      string  `json:"name"`
	Region    string  `json:"region"`
	Country   string  `json:"country"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	TzID      string  `json:"tz_id"`
	Localtime string  `json:"localtime"`
}

// DisplayName joins name, region and country, skipping empty parts.
func (l Location) DisplayName() string {
	out := l.Name
	if l.Region != "" {
		out += ", " + l.Region
	}
	if l.Country != "" {
		out += ", " + l.Country
	}
	return out
}

// ShortName is name plus region, used for the search box and page title.
func (l Location) ShortName() string {
	if l.Region == "" {
		return l.Name
	}
	return l.Name + ", " + l.Region
}

type Condition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
	Code int    `json:"code"`
}

// Current holds current conditions. Pointer fields are optional in the upstream payload.
type Current struct {
	LastUpdated string             `json:"last_updated"`
	TempC       float64            `json:"temp_c"`
	FeelsLikeC  *float64           `json:"feelslike_c,omitempty"`
	Condition   *Condition         `json:"condition,omitempty"`
	Humidity    *float64           `json:"humidity,omitempty"`
	WindKPH     *float64           `json:"wind_kph,omitempty"`
	GustKPH     *float64           `json:"gust_kph,omitempty"`
	VisKM       *float64           `json:"vis_km,omitempty"`
	PressureMB  *float64           `json:"pressure_mb,omitempty"`
	UV          *float64           `json:"uv,omitempty"`
	AirQuality  map[string]float64 `json:"air_quality,omitempty"`
}

// ConditionText returns the condition text or "" when the block is missing.
func (c Current) ConditionText() string {
	if c.Condition == nil {
		return ""
	}
	return c.Condition.Text
}

// EPAIndex returns the US EPA air quality index, accepting both key spellings.
func (c Current) EPAIndex() (float64, bool) {
	if c.AirQuality == nil {
		return 0, false
	}
	if v, ok := c.AirQuality["us-epa-index"]; ok {
		return v, true
	}
	v, ok := c.AirQuality["us-epa"]
	return v, ok
}

// CurrentResponse is the body of current.json.
type CurrentResponse struct {
	Location *Location `json:"location"`
	Current  *Current  `json:"current"`
}

// Valid reports whether both the location and current blocks are present.
func (r *CurrentResponse) Valid() bool {
	return r != nil && r.Location != nil && r.Current != nil
}

type DayCondition struct {
	MaxTempC  float64    `json:"maxtemp_c"`
	MinTempC  float64    `json:"mintemp_c"`
	AvgTempC  float64    `json:"avgtemp_c"`
	Condition *Condition `json:"condition,omitempty"`
}

type ForecastDay struct {
	Date string       `json:"date"`
	Day  DayCondition `json:"day"`
}

type Forecast struct {
	ForecastDay []ForecastDay `json:"forecastday"`
}

// ForecastResponse is the body of forecast.json.
type ForecastResponse struct {
	Location *Location `json:"location"`
	Current  *Current  `json:"current"`
	Forecast *Forecast `json:"forecast"`
}

// Days returns the forecast days or nil when the forecast block is missing.
func (r *ForecastResponse) Days() []ForecastDay {
	if r == nil || r.Forecast == nil {
		return nil
	}
	return r.Forecast.ForecastDay
}

// Place is one search.json match.
type Place struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Region  string  `json:"region"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	URL     string  `json:"url"`
}

// DisplayName joins name, region and country, skipping empty parts.
func (p Place) DisplayName() string {
	return Location{Name: p.Name, Region: p.Region, Country: p.Country}.DisplayName()
}

// CityRecord is one CityCache entry. Records are replaced wholesale, never mutated.
type CityRecord struct {
	City      string           `json:"city"`
	Payload   *CurrentResponse `json:"payload"`
	FetchedAt time.Time        `json:"fetchedAt"`
}

// FetchedAtMillis returns the fetch time as Unix epoch milliseconds.
func (r CityRecord) FetchedAtMillis() int64 {
	return r.FetchedAt.UnixMilli()
}
