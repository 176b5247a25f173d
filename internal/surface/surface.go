// Package surface holds the rendering targets the dashboard draws into.
package surface

import (
	"time"

	"github.com/kjstillabower/city-weather-dashboard/internal/table"
)

// Panel is the current-conditions card for the selected city.
type Panel struct {
	Title       string    `json:"title"`
	City        string    `json:"city"`
	SearchText  string    `json:"searchText"`
	Temperature string    `json:"temperature"`
	Description string    `json:"description"`
	FeelsLike   string    `json:"feelsLike"`
	Humidity    string    `json:"humidity"`
	Wind        string    `json:"wind"`
	Visibility  string    `json:"visibility"`
	Pressure    string    `json:"pressure"`
	UV          string    `json:"uv"`
	DewPoint    string    `json:"dewPoint"`
	AQI         string    `json:"aqi"`
	ReceivedAt  time.Time `json:"receivedAt,omitzero"`
}

// ForecastDay is one forecast card.
type ForecastDay struct {
	Date        string `json:"date"`
	Label       string `json:"label"`
	Temperature string `json:"temperature"`
	Condition   string `json:"condition"`
	HighLow     string `json:"highLow"`
}

// ForecastPanel is the multi-day forecast strip. Message replaces Days when
// there is nothing to show; Error marks it as a failure message.
type ForecastPanel struct {
	Days     []ForecastDay `json:"days"`
	Timezone string        `json:"timezone,omitempty"`
	Message  string        `json:"message,omitempty"`
	Error    bool          `json:"error,omitempty"`
}

// SuggestionStatus describes the autocomplete box.
type SuggestionStatus string

const (
	SuggestionsHidden    SuggestionStatus = "hidden"
	SuggestionsSearching SuggestionStatus = "searching"
	SuggestionsResults   SuggestionStatus = "results"
	SuggestionsEmpty     SuggestionStatus = "empty"
	SuggestionsFailed    SuggestionStatus = "failed"
)

// Suggestion is one autocomplete entry.
type Suggestion struct {
	DisplayName string   `json:"displayName"`
	Temperature string   `json:"temperature"`
	TempC       *float64 `json:"tempC,omitempty"`
}

// Suggestions is the autocomplete box state.
type Suggestions struct {
	Status SuggestionStatus `json:"status"`
	Items  []Suggestion     `json:"items,omitempty"`
}

// Level is a notification severity.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is a user-facing message, the equivalent of an alert box.
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Sink receives everything the dashboard renders. Implementations must be safe
// for concurrent use: the roster loader renders from its own goroutine.
type Sink interface {
	Table(view table.View)
	TableError(message string)
	Loading(loading bool)
	Current(panel Panel)
	Forecast(panel ForecastPanel)
	Suggestions(s Suggestions)
	Notify(n Notice)
}
