package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"campusbus/internal/campus"
	"campusbus/internal/domain"
	"campusbus/internal/store"
)

// File is the on-disk seed format. Polylines are [lat, lon] pairs so
// the file stays hand-editable.
type File struct {
	Routes           []RouteSeed    `yaml:"routes"`
	Stops            []StopSeed     `yaml:"stops"`
	Vehicles         []VehicleSeed  `yaml:"vehicles"`
	Buildings        []BuildingSeed `yaml:"buildings"`
	DefaultBoardStop string         `yaml:"default_board_stop"`
}

type RouteSeed struct {
	ID       string       `yaml:"id"`
	Name     string       `yaml:"name"`
	Loop     bool         `yaml:"loop"`
	Polyline [][2]float64 `yaml:"polyline"`
}

type StopSeed struct {
	ID      string  `yaml:"id"`
	RouteID string  `yaml:"route_id"`
	Name    string  `yaml:"name"`
	Lat     float64 `yaml:"lat"`
	Lon     float64 `yaml:"lon"`
	Seq     int     `yaml:"seq"`
}

type VehicleSeed struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	RouteID string `yaml:"route_id"`
	Secret  string `yaml:"secret"`
}

type BuildingSeed struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Lat     float64  `yaml:"lat"`
	Lon     float64  `yaml:"lon"`
	StopID  string   `yaml:"stop_id"`
	Aliases []string `yaml:"aliases"`
	Notes   string   `yaml:"notes"`
}

// BuildingRegistry receives campus guidance data from the seed file.
type BuildingRegistry interface {
	SetBuildings(buildings []campus.Building)
	SetDefaultBoardStop(stopID string)
}

// Parse decodes and validates seed YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	routeIDs := make(map[string]struct{}, len(f.Routes))
	for i, r := range f.Routes {
		if r.ID == "" {
			return nil, fmt.Errorf("route %d: missing id", i)
		}
		if len(r.Polyline) < 2 {
			return nil, fmt.Errorf("route %s: polyline needs at least 2 points", r.ID)
		}
		routeIDs[r.ID] = struct{}{}
	}
	stopIDs := make(map[string]struct{}, len(f.Stops))
	for i, s := range f.Stops {
		if s.ID == "" {
			return nil, fmt.Errorf("stop %d: missing id", i)
		}
		if _, ok := routeIDs[s.RouteID]; !ok {
			return nil, fmt.Errorf("stop %s: unknown route %q", s.ID, s.RouteID)
		}
		stopIDs[s.ID] = struct{}{}
	}
	for i, v := range f.Vehicles {
		if v.ID == "" {
			return nil, fmt.Errorf("vehicle %d: missing id", i)
		}
		if _, ok := routeIDs[v.RouteID]; !ok {
			return nil, fmt.Errorf("vehicle %s: unknown route %q", v.ID, v.RouteID)
		}
	}
	for i, b := range f.Buildings {
		if b.ID == "" {
			return nil, fmt.Errorf("building %d: missing id", i)
		}
		if _, ok := stopIDs[b.StopID]; !ok {
			return nil, fmt.Errorf("building %s: unknown stop %q", b.ID, b.StopID)
		}
	}
	if f.DefaultBoardStop != "" {
		if _, ok := stopIDs[f.DefaultBoardStop]; !ok {
			return nil, fmt.Errorf("default_board_stop: unknown stop %q", f.DefaultBoardStop)
		}
	}
	return &f, nil
}

// Load reads a seed file and upserts its contents into the stores.
// Missing path is not an error; the server just starts empty.
func Load(ctx context.Context, path string, routes store.RouteStore, vehicles store.VehicleStore, buildings BuildingRegistry, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("no seed file, starting empty", "path", path)
			return nil
		}
		return fmt.Errorf("read seed: %w", err)
	}

	f, err := Parse(data)
	if err != nil {
		return err
	}

	for _, r := range f.Routes {
		polyline := make([]domain.LatLng, len(r.Polyline))
		for i, p := range r.Polyline {
			polyline[i] = domain.LatLng{Lat: p[0], Lon: p[1]}
		}
		if err := routes.UpsertRoute(ctx, &domain.Route{
			ID: r.ID, Name: r.Name, Loop: r.Loop, Polyline: polyline,
		}); err != nil {
			return fmt.Errorf("seed route %s: %w", r.ID, err)
		}
	}
	for _, s := range f.Stops {
		if err := routes.UpsertStop(ctx, &domain.Stop{
			ID: s.ID, RouteID: s.RouteID, Name: s.Name, Lat: s.Lat, Lon: s.Lon, Seq: s.Seq,
		}); err != nil {
			return fmt.Errorf("seed stop %s: %w", s.ID, err)
		}
	}
	for _, v := range f.Vehicles {
		if err := vehicles.UpsertVehicle(ctx, &domain.Vehicle{
			ID: v.ID, Name: v.Name, RouteID: v.RouteID, Secret: v.Secret,
		}); err != nil {
			return fmt.Errorf("seed vehicle %s: %w", v.ID, err)
		}
	}

	if buildings != nil && (len(f.Buildings) > 0 || f.DefaultBoardStop != "") {
		defs := make([]campus.Building, len(f.Buildings))
		for i, b := range f.Buildings {
			defs[i] = campus.Building{
				ID: b.ID, Name: b.Name, Lat: b.Lat, Lon: b.Lon,
				StopID: b.StopID, Aliases: b.Aliases, Notes: b.Notes,
			}
		}
		buildings.SetBuildings(defs)
		buildings.SetDefaultBoardStop(f.DefaultBoardStop)
	}

	logger.Info("seed loaded",
		"routes", len(f.Routes), "stops", len(f.Stops),
		"vehicles", len(f.Vehicles), "buildings", len(f.Buildings))
	return nil
}
