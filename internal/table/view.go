package table

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/kjstillabower/city-weather-dashboard/internal/models"
)

// Row is one rendered table line.
type Row struct {
	City           string    `json:"city"`
	Name           string    `json:"name"`
	TempC          float64   `json:"tempC"`
	Temperature    string    `json:"temperature"`
	TempClass      string    `json:"tempClass"`
	Condition      string    `json:"condition"`
	ConditionClass string    `json:"conditionClass"`
	Humidity       string    `json:"humidity"`
	Wind           string    `json:"wind"`
	Visibility     string    `json:"visibility"`
	Pressure       string    `json:"pressure"`
	UV             string    `json:"uv"`
	UVClass        string    `json:"uvClass,omitempty"`
	DewPoint       string    `json:"dewPoint"`
	LastUpdated    string    `json:"lastUpdated"`
	Gust           string    `json:"gust"`
	FetchedAt      time.Time `json:"fetchedAt"`
	Highlighted    bool      `json:"highlighted"`
}

// View is the rendered table. Placeholder is set only when there was nothing to render.
type View struct {
	Rows        []Row    `json:"rows"`
	Count       int      `json:"count"`
	Placeholder string   `json:"placeholder,omitempty"`
	Filter      string   `json:"filter,omitempty"`
	Sort        SortSpec `json:"sort"`
}

// Render derives the table from cache entries. It keeps entries with a payload,
// applies a case-insensitive substring filter on the city name, then sorts stably
// so that ties keep cache order. entries is not modified.
func Render(entries []models.CityRecord, filter string, spec SortSpec) View {
	view := View{Filter: filter, Sort: spec}
	if len(entries) == 0 {
		view.Placeholder = Placeholder
		view.Rows = []Row{}
		return view
	}

	needle := strings.ToLower(filter)
	kept := make([]models.CityRecord, 0, len(entries))
	for _, e := range entries {
		if !e.Payload.Valid() {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.City), needle) {
			continue
		}
		kept = append(kept, e)
	}

	if spec.Column != ColumnNone {
		slices.SortStableFunc(kept, func(a, b models.CityRecord) int {
			c := compare(a, b, spec.Column)
			if spec.Direction == Descending {
				return -c
			}
			return c
		})
	}

	view.Rows = make([]Row, 0, len(kept))
	for _, e := range kept {
		view.Rows = append(view.Rows, newRow(e))
	}
	view.Count = len(view.Rows)
	return view
}

// Highlight marks rows whose city equals city.
func (v View) Highlight(city string) View {
	if city == "" {
		return v
	}
	rows := make([]Row, len(v.Rows))
	copy(rows, v.Rows)
	for i := range rows {
		rows[i].Highlighted = rows[i].City == city
	}
	v.Rows = rows
	return v
}

func compare(a, b models.CityRecord, col Column) int {
	switch col {
	case ColumnCity:
		return strings.Compare(strings.ToLower(a.City), strings.ToLower(b.City))
	case ColumnTemperature:
		return cmp.Compare(a.Payload.Current.TempC, b.Payload.Current.TempC)
	case ColumnHumidity:
		return compareOptional(a.Payload.Current.Humidity, b.Payload.Current.Humidity)
	}
	return 0
}

// compareOptional orders a missing value before any present one.
func compareOptional(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return cmp.Compare(*a, *b)
}

func newRow(e models.CityRecord) Row {
	cur := e.Payload.Current
	row := Row{
		City:           e.City,
		Name:           e.Payload.Location.Name,
		TempC:          cur.TempC,
		Temperature:    Degrees(cur.TempC),
		TempClass:      TemperatureClass(cur.TempC),
		Condition:      cur.ConditionText(),
		ConditionClass: ConditionClass(cur.ConditionText()),
		Humidity:       Optional(cur.Humidity, Percent),
		Wind:           Optional(cur.WindKPH, KMH),
		Visibility:     Optional(cur.VisKM, KM),
		Pressure:       Optional(cur.PressureMB, HPa),
		UV:             Optional(cur.UV, FormatNumber),
		UVClass:        UVClass(cur.UV),
		DewPoint:       Missing,
		LastUpdated:    FormatLastUpdated(cur.LastUpdated),
		Gust:           Missing,
		FetchedAt:      e.FetchedAt,
	}
	if row.Condition == "" {
		row.Condition = "—"
	}
	if cur.Humidity != nil {
		row.DewPoint = Degrees(DewPoint(cur.TempC, *cur.Humidity))
	}
	// A zero gust reads as calm and is shown as missing.
	if cur.GustKPH != nil && *cur.GustKPH != 0 {
		row.Gust = KMH(*cur.GustKPH)
	}
	return row
}
