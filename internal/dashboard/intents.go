package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather-dashboard/internal/observability"
	"github.com/kjstillabower/city-weather-dashboard/internal/surface"
	"github.com/kjstillabower/city-weather-dashboard/internal/table"
	"github.com/kjstillabower/city-weather-dashboard/internal/validation"
)

// ErrNoSuggestion is returned when SelectSuggestion names an index that is not shown.
var ErrNoSuggestion = errors.New("no such suggestion")

// ErrUnknownIntent is returned by Dispatch for intent types it does not handle.
var ErrUnknownIntent = errors.New("unknown intent")

// Intent is a user action on the dashboard.
type Intent interface {
	intentName() string
}

// Search loads a city by name or "lat,lon". An empty query loads the default city.
type Search struct{ Query string }

// SelectSuggestion picks an autocomplete entry by its position.
type SelectSuggestion struct{ Index int }

// ToggleSort is a click on a sortable column header.
type ToggleSort struct{ Column table.Column }

// FilterChanged is an edit of the table filter box.
type FilterChanged struct{ Text string }

// RefreshAll clears the table and reloads the roster.
type RefreshAll struct{}

// RefreshCurrent reloads the current city.
type RefreshCurrent struct{}

// Locate loads the weather at a device position. Err carries the platform's
// failure reason when no position could be obtained.
type Locate struct {
	Lat float64
	Lon float64
	Err string
}

// Suggest is a keystroke in the search box. Lookups are debounced.
type Suggest struct{ Text string }

func (Search) intentName() string           { return "search" }
func (SelectSuggestion) intentName() string { return "select_suggestion" }
func (ToggleSort) intentName() string       { return "toggle_sort" }
func (FilterChanged) intentName() string    { return "filter_changed" }
func (RefreshAll) intentName() string       { return "refresh_all" }
func (RefreshCurrent) intentName() string   { return "refresh_current" }
func (Locate) intentName() string           { return "locate" }
func (Suggest) intentName() string          { return "suggest" }

// GeolocationError reports that a device position was denied or unusable.
type GeolocationError struct {
	Reason string
}

func (e *GeolocationError) Error() string {
	return "Location error: " + e.Reason
}

// Dispatch applies one intent. Errors are also rendered to the sink where the
// dashboard shows them; callers may ignore the return value.
func (a *App) Dispatch(ctx context.Context, intent Intent) error {
	observability.IntentsTotal.WithLabelValues(intent.intentName()).Inc()
	a.logger.Debug("dispatch intent", zap.String("intent", intent.intentName()))

	switch in := intent.(type) {
	case Search:
		query := strings.TrimSpace(in.Query)
		if query == "" {
			query = a.cfg.DefaultCity
		}
		a.hideSuggestions()
		return a.loadCity(ctx, query, true)

	case SelectSuggestion:
		return a.selectSuggestion(ctx, in.Index)

	case ToggleSort:
		a.mu.Lock()
		a.sort = a.sort.Toggle(in.Column)
		a.mu.Unlock()
		a.renderTable(ctx)
		return nil

	case FilterChanged:
		a.mu.Lock()
		a.filter = in.Text
		a.mu.Unlock()
		a.renderTable(ctx)
		return nil

	case RefreshAll:
		return a.refreshAll(ctx)

	case RefreshCurrent:
		a.mu.Lock()
		city := a.currentCity
		a.mu.Unlock()
		return a.loadCity(ctx, city, true)

	case Locate:
		return a.locate(ctx, in)

	case Suggest:
		a.mu.Lock()
		a.suggestGen++
		gen := a.suggestGen
		a.mu.Unlock()
		if strings.TrimSpace(in.Text) == "" {
			a.debouncer.Stop()
			a.hideSuggestions()
			return nil
		}
		a.debouncer.Trigger(suggestRequest{text: in.Text, gen: gen})
		return nil
	}
	return fmt.Errorf("%w: %T", ErrUnknownIntent, intent)
}

func (a *App) locate(ctx context.Context, in Locate) error {
	var gerr *GeolocationError
	if in.Err != "" {
		gerr = &GeolocationError{Reason: in.Err}
	} else if _, err := validation.FromCoordinates(in.Lat, in.Lon); err != nil {
		gerr = &GeolocationError{Reason: err.Error()}
	}
	if gerr != nil {
		a.logger.Warn("geolocation failed", zap.String("reason", gerr.Reason))
		a.notify(surface.LevelError, gerr.Error())
		return gerr
	}
	loc, _ := validation.FromCoordinates(in.Lat, in.Lon)
	return a.loadCity(ctx, loc.String(), true)
}
