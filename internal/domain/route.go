package domain

// LatLng is a WGS84 coordinate pair in degrees. Latitude and longitude
// always travel together.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Route is a fixed shuttle path. Polyline is the authoritative
// geometry; Loop marks routes whose path returns to its starting
// point, which makes along-route distance queries wrap around the
// closure segment.
type Route struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Polyline []LatLng `json:"polyline"`
	Loop     bool     `json:"loop"`
}

// Stop is a boarding point on a route. Seq orders stops for display;
// distance arithmetic always goes through polyline projection, never
// through Seq.
type Stop struct {
	ID      string  `json:"id"`
	RouteID string  `json:"route_id"`
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Seq     int     `json:"seq"`
}
