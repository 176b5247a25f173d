package surface

import (
	"slices"
	"sync"

	"github.com/kjstillabower/city-weather-dashboard/internal/table"
)

// maxNotices bounds the notice history kept in a snapshot.
const maxNotices = 20

// State is a point-in-time copy of everything rendered.
type State struct {
	Table       table.View    `json:"table"`
	TableError  string        `json:"tableError,omitempty"`
	Loading     bool          `json:"loading"`
	Current     Panel         `json:"current"`
	Forecast    ForecastPanel `json:"forecast"`
	Suggestions Suggestions   `json:"suggestions"`
	Notices     []Notice      `json:"notices"`
}

// Snapshot is a Sink that keeps the latest rendered state in memory.
type Snapshot struct {
	mu    sync.RWMutex
	state State
}

// NewSnapshot returns a Snapshot with the panels in their loading state.
func NewSnapshot() *Snapshot {
	return &Snapshot{state: State{
		Table:       table.View{Rows: []table.Row{}, Placeholder: table.Placeholder},
		Current:     Panel{Temperature: "Loading..."},
		Suggestions: Suggestions{Status: SuggestionsHidden},
		Notices:     []Notice{},
	}}
}

func (s *Snapshot) Table(view table.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Table = view
	s.state.TableError = ""
}

// TableError replaces the table body with an error message until the next Table call.
func (s *Snapshot) TableError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TableError = message
}

func (s *Snapshot) Loading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loading = loading
}

func (s *Snapshot) Current(panel Panel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Current = panel
}

func (s *Snapshot) Forecast(panel ForecastPanel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Forecast = panel
}

func (s *Snapshot) Suggestions(sg Suggestions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Suggestions = sg
}

// Notify appends n, dropping the oldest notice past the history limit.
func (s *Snapshot) Notify(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Notices = append(s.state.Notices, n)
	if len(s.state.Notices) > maxNotices {
		s.state.Notices = slices.Clone(s.state.Notices[len(s.state.Notices)-maxNotices:])
	}
}

// State returns a copy safe to read after the lock is released.
func (s *Snapshot) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.Table.Rows = slices.Clone(s.state.Table.Rows)
	st.Forecast.Days = slices.Clone(s.state.Forecast.Days)
	st.Suggestions.Items = slices.Clone(s.state.Suggestions.Items)
	st.Notices = slices.Clone(s.state.Notices)
	return st
}
