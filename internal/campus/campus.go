// Package campus maps campus buildings to the shuttle stop a rider
// should get off at, with a rough walking estimate for the last leg.
package campus

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"campusbus/internal/domain"
	"campusbus/internal/geo"
	"campusbus/internal/store"
)

// walkSpeedMps is the assumed door-to-stop walking pace, about 4.9 km/h.
const walkSpeedMps = 1.35

var (
	ErrBuildingNotFound = errors.New("building not found")
	ErrNoBoardStop      = errors.New("default boarding stop not configured")
)

// Building is a campus building with the stop recommended for reaching it.
type Building struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Lat     float64  `json:"lat"`
	Lon     float64  `json:"lon"`
	StopID  string   `json:"stop_id"`
	Aliases []string `json:"aliases,omitempty"`
	Notes   string   `json:"notes,omitempty"`
}

// Guide is the boarding guidance payload for one building.
type Guide struct {
	BuildingID           string       `json:"building_id"`
	BuildingName         string       `json:"building_name"`
	Aliases              []string     `json:"aliases"`
	Lat                  float64      `json:"lat"`
	Lon                  float64      `json:"lon"`
	RecommendedStop      *domain.Stop `json:"recommended_stop"`
	WalkDistanceM        float64      `json:"walk_distance_m"`
	EstimatedWalkMinutes float64      `json:"estimated_walk_minutes"`
	Notes                string       `json:"notes,omitempty"`
}

// Service answers building lookups against a registry loaded at seed
// time. Lookups resolve stops through the route store so guidance
// reflects polyline edits made after startup.
type Service struct {
	stops  store.RouteStore
	logger *slog.Logger

	mu          sync.RWMutex
	buildings   []Building
	byToken     map[string]int
	boardStopID string
}

func NewService(stops store.RouteStore, logger *slog.Logger) *Service {
	return &Service{
		stops:   stops,
		logger:  logger.With("component", "campus"),
		byToken: make(map[string]int),
	}
}

// SetBuildings replaces the registry and rebuilds the alias index.
// When two buildings claim the same alias the first one wins.
func (s *Service) SetBuildings(buildings []Building) {
	byToken := make(map[string]int)
	add := func(token string, idx int) {
		token = normalize(token)
		if token == "" {
			return
		}
		if _, ok := byToken[token]; !ok {
			byToken[token] = idx
		}
	}
	for i, b := range buildings {
		add(b.ID, i)
		add(b.Name, i)
		for _, a := range b.Aliases {
			add(a, i)
		}
	}

	s.mu.Lock()
	s.buildings = buildings
	s.byToken = byToken
	s.mu.Unlock()
}

// SetDefaultBoardStop records the stop riders board at by default.
func (s *Service) SetDefaultBoardStop(stopID string) {
	s.mu.Lock()
	s.boardStopID = stopID
	s.mu.Unlock()
}

// DefaultBoardStop resolves the configured boarding stop. It returns
// ErrNoBoardStop when none was seeded.
func (s *Service) DefaultBoardStop(ctx context.Context) (*domain.Stop, error) {
	s.mu.RLock()
	stopID := s.boardStopID
	s.mu.RUnlock()
	if stopID == "" {
		return nil, ErrNoBoardStop
	}
	return s.stops.GetStop(ctx, stopID)
}

// Guide resolves a building by id, name, or alias (case-insensitive)
// and returns its guidance payload.
func (s *Service) Guide(ctx context.Context, idOrAlias string) (*Guide, error) {
	s.mu.RLock()
	idx, ok := s.byToken[normalize(idOrAlias)]
	var b Building
	if ok {
		b = s.buildings[idx]
	}
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBuildingNotFound
	}

	g, err := s.buildGuide(ctx, b)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBuildingNotFound
		}
		return nil, err
	}
	return g, nil
}

// List returns guidance for every building whose id, name, or alias
// contains the query substring (empty query matches all), sorted by
// building name. Buildings whose stop no longer exists are skipped.
func (s *Service) List(ctx context.Context, query string) ([]*Guide, error) {
	s.mu.RLock()
	buildings := s.buildings
	s.mu.RUnlock()

	q := normalize(query)
	guides := make([]*Guide, 0, len(buildings))
	for _, b := range buildings {
		if q != "" && !matches(b, q) {
			continue
		}
		g, err := s.buildGuide(ctx, b)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.logger.Warn("building references unknown stop",
					"building_id", b.ID, "stop_id", b.StopID)
				continue
			}
			return nil, err
		}
		guides = append(guides, g)
	}
	sort.Slice(guides, func(i, j int) bool {
		return guides[i].BuildingName < guides[j].BuildingName
	})
	return guides, nil
}

func (s *Service) buildGuide(ctx context.Context, b Building) (*Guide, error) {
	stop, err := s.stops.GetStop(ctx, b.StopID)
	if err != nil {
		return nil, err
	}

	walkM := geo.HaversineM(b.Lat, b.Lon, stop.Lat, stop.Lon)
	minutes := walkM / math.Max(walkSpeedMps*60.0, 1.0)

	seen := make(map[string]struct{})
	aliases := make([]string, 0, len(b.Aliases)+1)
	for _, a := range append([]string{b.Name}, b.Aliases...) {
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)

	return &Guide{
		BuildingID:           b.ID,
		BuildingName:         b.Name,
		Aliases:              aliases,
		Lat:                  b.Lat,
		Lon:                  b.Lon,
		RecommendedStop:      stop,
		WalkDistanceM:        round1(walkM),
		EstimatedWalkMinutes: round1(minutes),
		Notes:                b.Notes,
	}, nil
}

func matches(b Building, q string) bool {
	if strings.Contains(normalize(b.ID), q) || strings.Contains(normalize(b.Name), q) {
		return true
	}
	for _, a := range b.Aliases {
		if strings.Contains(normalize(a), q) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
