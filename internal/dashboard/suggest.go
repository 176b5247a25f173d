package dashboard

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather-dashboard/internal/models"
	"github.com/kjstillabower/city-weather-dashboard/internal/surface"
	"github.com/kjstillabower/city-weather-dashboard/internal/table"
	"github.com/kjstillabower/city-weather-dashboard/internal/validation"
)

// Suggest runs an autocomplete lookup for text immediately and renders the result.
// Dispatching a Suggest intent does the same after the debounce delay.
func (a *App) Suggest(ctx context.Context, text string) surface.Suggestions {
	a.mu.Lock()
	a.suggestGen++
	gen := a.suggestGen
	a.mu.Unlock()
	return a.runSuggest(ctx, suggestRequest{text: text, gen: gen})
}

func (a *App) runSuggest(ctx context.Context, req suggestRequest) surface.Suggestions {
	term := strings.TrimSpace(req.text)
	if term == "" {
		a.hideSuggestions()
		return surface.Suggestions{Status: surface.SuggestionsHidden}
	}
	a.sink.Suggestions(surface.Suggestions{Status: surface.SuggestionsSearching})

	places, err := a.client.Search(ctx, term)
	if err != nil {
		a.logger.Warn("autocomplete error", zap.String("query", term), zap.Error(err))
		return a.publishSuggestions(req.gen, nil, surface.Suggestions{Status: surface.SuggestionsFailed})
	}
	if len(places) == 0 {
		return a.publishSuggestions(req.gen, nil, surface.Suggestions{Status: surface.SuggestionsEmpty})
	}
	if len(places) > a.cfg.SuggestionLimit {
		places = places[:a.cfg.SuggestionLimit]
	}

	enriched := a.enrich(ctx, places)
	out := surface.Suggestions{Status: surface.SuggestionsResults, Items: make([]surface.Suggestion, 0, len(enriched))}
	for _, s := range enriched {
		item := surface.Suggestion{DisplayName: s.place.DisplayName(), Temperature: noDescription}
		if s.payload != nil {
			t := s.payload.Current.TempC
			item.TempC = &t
			item.Temperature = table.Degrees(t)
		}
		out.Items = append(out.Items, item)
	}
	return a.publishSuggestions(req.gen, enriched, out)
}

// enrich fetches current conditions for every place concurrently by coordinates.
// A failed lookup leaves that place without a payload.
func (a *App) enrich(ctx context.Context, places []models.Place) []suggestion {
	out := make([]suggestion, len(places))
	var wg sync.WaitGroup
	for i, p := range places {
		out[i].place = p
		loc, err := validation.FromCoordinates(p.Lat, p.Lon)
		if err != nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload, err := a.client.Current(ctx, loc.String())
			if err != nil || !payload.Valid() {
				a.logger.Debug("suggestion enrichment failed", zap.String("place", p.DisplayName()), zap.Error(err))
				return
			}
			out[i].payload = payload
		}()
	}
	wg.Wait()
	return out
}

// publishSuggestions renders s unless a newer lookup has started since gen.
func (a *App) publishSuggestions(gen uint64, items []suggestion, s surface.Suggestions) surface.Suggestions {
	a.mu.Lock()
	if gen != a.suggestGen {
		a.mu.Unlock()
		return s
	}
	a.suggestions = items
	a.mu.Unlock()
	a.sink.Suggestions(s)
	return s
}

func (a *App) hideSuggestions() {
	a.mu.Lock()
	a.suggestions = nil
	a.mu.Unlock()
	a.sink.Suggestions(surface.Suggestions{Status: surface.SuggestionsHidden})
}

// selectSuggestion shows a picked suggestion. When its conditions were already fetched
// they are rendered as is; otherwise the place is searched by display name.
func (a *App) selectSuggestion(ctx context.Context, index int) error {
	a.mu.Lock()
	if index < 0 || index >= len(a.suggestions) {
		a.mu.Unlock()
		return ErrNoSuggestion
	}
	picked := a.suggestions[index]
	a.mu.Unlock()
	a.hideSuggestions()

	if picked.payload == nil {
		return a.loadCity(ctx, picked.place.DisplayName(), true)
	}
	a.renderCurrent(picked.payload)
	a.loadForecast(ctx, picked.payload.Location.Name)
	a.mu.Lock()
	a.currentCity = picked.payload.Location.Name
	a.mu.Unlock()
	a.renderTable(ctx)
	return nil
}
