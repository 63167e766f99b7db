package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"campusbus/internal/domain"
)

// Postgres persists positions, routes, stops and vehicles in a
// Postgres database. Route polylines are stored as JSON arrays of
// [lat, lon] pairs.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects, verifies the connection and ensures the
// schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	p := &Postgres{db: db}
	if err := p.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS routes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			polyline JSONB NOT NULL,
			loop BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS stops (
			id TEXT PRIMARY KEY,
			route_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			lat DOUBLE PRECISION NOT NULL,
			lon DOUBLE PRECISION NOT NULL,
			seq INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vehicles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			route_id TEXT NOT NULL,
			secret TEXT NOT NULL DEFAULT '',
			last_seen_ts BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			vehicle_id TEXT NOT NULL,
			ts BIGINT NOT NULL,
			lat DOUBLE PRECISION NOT NULL,
			lon DOUBLE PRECISION NOT NULL,
			speed_mps DOUBLE PRECISION,
			heading DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS positions_vehicle_ts ON positions (vehicle_id, ts DESC)`,
		`CREATE INDEX IF NOT EXISTS stops_route ON stops (route_id, seq)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Append(ctx context.Context, pos domain.Position) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO positions (vehicle_id, ts, lat, lon, speed_mps, heading) VALUES ($1, $2, $3, $4, $5, $6)`,
		pos.VehicleID, pos.TS, pos.Lat, pos.Lon, pos.SpeedMps, pos.Heading)
	return err
}

func (p *Postgres) Latest(ctx context.Context, vehicleID string) (*domain.Position, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT vehicle_id, ts, lat, lon, speed_mps, heading FROM positions
		 WHERE vehicle_id = $1 ORDER BY ts DESC LIMIT 1`, vehicleID)
	pos, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return pos, err
}

func (p *Postgres) Since(ctx context.Context, vehicleID string, sinceTS int64, desc bool) ([]domain.Position, error) {
	order := "ASC"
	if desc {
		order = "DESC"
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT vehicle_id, ts, lat, lon, speed_mps, heading FROM positions
		 WHERE vehicle_id = $1 AND ts >= $2 ORDER BY ts `+order, vehicleID, sinceTS)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *pos)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(r rowScanner) (*domain.Position, error) {
	var pos domain.Position
	var speed, heading sql.NullFloat64
	if err := r.Scan(&pos.VehicleID, &pos.TS, &pos.Lat, &pos.Lon, &speed, &heading); err != nil {
		return nil, err
	}
	if speed.Valid {
		pos.SpeedMps = &speed.Float64
	}
	if heading.Valid {
		pos.Heading = &heading.Float64
	}
	return &pos, nil
}

func (p *Postgres) GetRoute(ctx context.Context, routeID string) (*domain.Route, error) {
	var r domain.Route
	var poly []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, polyline, loop FROM routes WHERE id = $1`, routeID).
		Scan(&r.ID, &r.Name, &poly, &r.Loop)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := unmarshalPolyline(poly, &r.Polyline); err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *Postgres) ListRoutes(ctx context.Context) ([]*domain.Route, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, polyline, loop FROM routes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Route
	for rows.Next() {
		var r domain.Route
		var poly []byte
		if err := rows.Scan(&r.ID, &r.Name, &poly, &r.Loop); err != nil {
			return nil, err
		}
		if err := unmarshalPolyline(poly, &r.Polyline); err != nil {
			return nil, err
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

func (p *Postgres) GetStop(ctx context.Context, stopID string) (*domain.Stop, error) {
	var s domain.Stop
	err := p.db.QueryRowContext(ctx,
		`SELECT id, route_id, name, lat, lon, seq FROM stops WHERE id = $1`, stopID).
		Scan(&s.ID, &s.RouteID, &s.Name, &s.Lat, &s.Lon, &s.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *Postgres) ListStops(ctx context.Context, routeID string) ([]*domain.Stop, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, route_id, name, lat, lon, seq FROM stops WHERE route_id = $1 ORDER BY seq`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Stop
	for rows.Next() {
		var s domain.Stop
		if err := rows.Scan(&s.ID, &s.RouteID, &s.Name, &s.Lat, &s.Lon, &s.Seq); err != nil {
			return nil, err
		}
		result = append(result, &s)
	}
	return result, rows.Err()
}

func (p *Postgres) UpsertRoute(ctx context.Context, r *domain.Route) error {
	poly, err := marshalPolyline(r.Polyline)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO routes (id, name, polyline, loop) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET name = $2, polyline = $3, loop = $4`,
		r.ID, r.Name, poly, r.Loop)
	return err
}

func (p *Postgres) UpsertStop(ctx context.Context, s *domain.Stop) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO stops (id, route_id, name, lat, lon, seq) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET route_id = $2, name = $3, lat = $4, lon = $5, seq = $6`,
		s.ID, s.RouteID, s.Name, s.Lat, s.Lon, s.Seq)
	return err
}

func (p *Postgres) SetPolyline(ctx context.Context, routeID string, polyline []domain.LatLng, loop bool) error {
	poly, err := marshalPolyline(polyline)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE routes SET polyline = $2, loop = $3 WHERE id = $1`, routeID, poly, loop)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	var v domain.Vehicle
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, route_id, secret, last_seen_ts FROM vehicles WHERE id = $1`, vehicleID).
		Scan(&v.ID, &v.Name, &v.RouteID, &v.Secret, &v.LastSeenTS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (p *Postgres) ListVehicles(ctx context.Context) ([]*domain.Vehicle, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name, route_id, secret, last_seen_ts FROM vehicles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Vehicle
	for rows.Next() {
		var v domain.Vehicle
		if err := rows.Scan(&v.ID, &v.Name, &v.RouteID, &v.Secret, &v.LastSeenTS); err != nil {
			return nil, err
		}
		result = append(result, &v)
	}
	return result, rows.Err()
}

func (p *Postgres) UpsertVehicle(ctx context.Context, v *domain.Vehicle) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO vehicles (id, name, route_id, secret, last_seen_ts) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = $2, route_id = $3, secret = $4`,
		v.ID, v.Name, v.RouteID, v.Secret, v.LastSeenTS)
	return err
}

func (p *Postgres) Touch(ctx context.Context, vehicleID string, ts int64) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE vehicles SET last_seen_ts = GREATEST(last_seen_ts, $2) WHERE id = $1`, vehicleID, ts)
	return err
}

// polylines travel as [[lat, lon], ...] JSON

func marshalPolyline(points []domain.LatLng) ([]byte, error) {
	pairs := make([][2]float64, len(points))
	for i, p := range points {
		pairs[i] = [2]float64{p.Lat, p.Lon}
	}
	return json.Marshal(pairs)
}

func unmarshalPolyline(data []byte, out *[]domain.LatLng) error {
	var pairs [][2]float64
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("decode polyline: %w", err)
	}
	*out = make([]domain.LatLng, len(pairs))
	for i, p := range pairs {
		(*out)[i] = domain.LatLng{Lat: p[0], Lon: p[1]}
	}
	return nil
}
