package cache

import "fmt"

const KeyRouteList = "routes"

func KeyRoute(routeID string) string {
	return fmt.Sprintf("route:%s", routeID)
}

func KeyRouteStops(routeID string) string {
	return fmt.Sprintf("route:%s:stops", routeID)
}

// KeyRoutePattern matches every cached payload derived from one
// route, for invalidation after a polyline update.
func KeyRoutePattern(routeID string) string {
	return fmt.Sprintf("route:%s*", routeID)
}
