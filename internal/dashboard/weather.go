package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/city-weather-dashboard/internal/loader"
	"github.com/kjstillabower/city-weather-dashboard/internal/models"
	"github.com/kjstillabower/city-weather-dashboard/internal/surface"
	"github.com/kjstillabower/city-weather-dashboard/internal/table"
	"github.com/kjstillabower/city-weather-dashboard/internal/validation"
)

const (
	loadingText         = "Loading..."
	temperatureFailed   = "--°C"
	searchFailedText    = "Failed to load weather for that location."
	tableErrorText      = "Failed to load weather data. Please try again."
	noForecastText      = "No forecast available"
	forecastFailedText  = "Failed to load forecast"
	noDescription       = "—"
	forecastDateLayout  = "2006-01-02"
	forecastLabelLayout = "Mon, Jan 2"
)

// ErrIncompletePayload is returned when current.json lacks its location or current block.
var ErrIncompletePayload = errors.New("incomplete weather payload")

// loadCity fetches and renders current conditions and the forecast for query, makes it
// the current city and re-renders the table. With notify set, a failure is reported to
// the user and the temperature is reset; otherwise it is only returned.
func (a *App) loadCity(ctx context.Context, query string, notify bool) error {
	a.renderLoading()

	payload, err := a.fetchCurrent(ctx, query)
	if err != nil {
		if notify {
			a.logger.Error("error loading weather", zap.String("query", query), zap.Error(err))
			a.notify(surface.LevelError, searchFailedText)
			a.renderTemperature(temperatureFailed)
		}
		return err
	}

	a.renderCurrent(payload)
	a.loadForecast(ctx, payload.Location.Name)
	a.mu.Lock()
	a.currentCity = payload.Location.Name
	a.mu.Unlock()
	a.renderTable(ctx)
	return nil
}

func (a *App) fetchCurrent(ctx context.Context, query string) (*models.CurrentResponse, error) {
	loc, err := validation.ParseLocator(query, a.cfg.MaxLocatorLength)
	if err != nil {
		return nil, fmt.Errorf("locator %q: %w", query, err)
	}
	payload, err := a.client.Current(ctx, loc.String())
	if err != nil {
		return nil, err
	}
	if !payload.Valid() {
		return nil, ErrIncompletePayload
	}
	return payload, nil
}

// loadForecast renders the forecast strip. Failures only affect the strip.
func (a *App) loadForecast(ctx context.Context, city string) {
	resp, err := a.client.Forecast(ctx, city, a.cfg.ForecastDays)
	if err != nil {
		a.logger.Warn("forecast error", zap.String("city", city), zap.Error(err))
		a.sink.Forecast(surface.ForecastPanel{Days: []surface.ForecastDay{}, Message: forecastFailedText, Error: true})
		return
	}
	if resp == nil || resp.Forecast == nil {
		return
	}
	a.sink.Forecast(buildForecastPanel(resp))
}

func (a *App) renderLoading() {
	a.renderTemperature(loadingText)
}

func (a *App) renderTemperature(text string) {
	a.mu.Lock()
	a.panel.Temperature = text
	panel := a.panel
	a.mu.Unlock()
	a.sink.Current(panel)
}

// renderCurrent draws the panel and marks the receipt time used by the freshness banner.
func (a *App) renderCurrent(payload *models.CurrentResponse) {
	panel := buildPanel(payload)
	panel.ReceivedAt = a.now()
	a.mu.Lock()
	a.panel = panel
	a.receivedAt = panel.ReceivedAt
	a.mu.Unlock()
	a.sink.Current(panel)
}

// renderTable re-derives the table from the cache with the current filter and sort.
func (a *App) renderTable(ctx context.Context) {
	entries, err := a.cache.Entries(ctx)
	if err != nil {
		a.logger.Error("read city cache", zap.Error(err))
		a.sink.TableError(tableErrorText)
		return
	}
	a.mu.Lock()
	filter, spec, city := a.filter, a.sort, a.currentCity
	a.mu.Unlock()
	a.sink.Table(table.Render(entries, filter, spec).Highlight(city))
}

func (a *App) refreshAll(ctx context.Context) error {
	a.sink.Loading(true)
	_, err := a.loader.RefreshAll(ctx)
	if errors.Is(err, loader.ErrInFlight) {
		// The running refresh owns the loading flag.
		return err
	}
	return a.finishRefresh(ctx, err)
}

// finishRefresh ends a roster refresh. After a failure the loader's error hook has
// already shown the table error, and a render would clear it.
func (a *App) finishRefresh(ctx context.Context, err error) error {
	a.sink.Loading(false)
	if err != nil {
		return err
	}
	a.renderTable(ctx)
	return nil
}

func (a *App) notify(level surface.Level, message string) {
	a.sink.Notify(surface.Notice{Level: level, Message: message, At: a.now()})
}

func buildPanel(r *models.CurrentResponse) surface.Panel {
	cur := r.Current
	p := surface.Panel{
		Title:       "Weather for " + r.Location.ShortName(),
		City:        r.Location.Name,
		SearchText:  r.Location.ShortName(),
		Temperature: table.Degrees(cur.TempC),
		Description: cur.ConditionText(),
		FeelsLike:   table.Optional(cur.FeelsLikeC, table.Degrees),
		Humidity:    table.Optional(cur.Humidity, table.Percent),
		Wind:        table.Optional(cur.WindKPH, table.KMH),
		Visibility:  table.Optional(cur.VisKM, table.KM),
		Pressure:    table.Optional(cur.PressureMB, table.HPa),
		UV:          table.Optional(cur.UV, table.FormatNumber),
		DewPoint:    table.Missing,
		AQI:         noDescription,
	}
	if p.Description == "" {
		p.Description = noDescription
	}
	if cur.Humidity != nil {
		p.DewPoint = table.Degrees(table.DewPoint(cur.TempC, *cur.Humidity))
	}
	if aqi, ok := cur.EPAIndex(); ok {
		p.AQI = table.FormatNumber(aqi)
	}
	return p
}

func buildForecastPanel(r *models.ForecastResponse) surface.ForecastPanel {
	panel := surface.ForecastPanel{Days: []surface.ForecastDay{}}
	if r.Location != nil {
		panel.Timezone = r.Location.TzID
	}
	days := r.Days()
	if len(days) == 0 {
		panel.Message = noForecastText
		return panel
	}
	for _, d := range days {
		label := d.Date
		if t, err := time.Parse(forecastDateLayout, d.Date); err == nil {
			label = t.Format(forecastLabelLayout)
		}
		cond := ""
		if d.Day.Condition != nil {
			cond = d.Day.Condition.Text
		}
		panel.Days = append(panel.Days, surface.ForecastDay{
			Date:        d.Date,
			Label:       label,
			Temperature: table.Degrees(d.Day.AvgTempC),
			Condition:   cond,
			HighLow:     fmt.Sprintf("H %d° / L %d°", table.Round(d.Day.MaxTempC), table.Round(d.Day.MinTempC)),
		})
	}
	return panel
}
