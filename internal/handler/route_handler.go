package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"campusbus/internal/cache"
	"campusbus/internal/domain"
	"campusbus/internal/publisher"
	"campusbus/internal/routegeom"
	"campusbus/internal/store"
)

type RouteHandler struct {
	routes   store.RouteStore
	geometry *routegeom.Cache
	cache    *cache.RedisCache // optional
	cacheTTL time.Duration
	sink     publisher.Sink
	logger   *slog.Logger
}

func NewRouteHandler(
	routes store.RouteStore,
	geometry *routegeom.Cache,
	redisCache *cache.RedisCache,
	cacheTTL time.Duration,
	sink publisher.Sink,
	logger *slog.Logger,
) *RouteHandler {
	return &RouteHandler{
		routes:   routes,
		geometry: geometry,
		cache:    redisCache,
		cacheTTL: cacheTTL,
		sink:     sink,
		logger:   logger.With("handler", "routes"),
	}
}

type RoutesResponse struct {
	Routes     []*domain.Route `json:"routes"`
	Count      int             `json:"count"`
	ServerTime time.Time       `json:"server_time"`
}

func (h *RouteHandler) List(w http.ResponseWriter, r *http.Request) {
	var cached RoutesResponse
	if h.cache != nil {
		if ok, err := h.cache.GetJSON(r.Context(), cache.KeyRouteList, &cached); err == nil && ok {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	routes, err := h.routes.ListRoutes(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	resp := RoutesResponse{Routes: routes, Count: len(routes), ServerTime: time.Now()}

	if h.cache != nil {
		if err := h.cache.SetJSON(r.Context(), cache.KeyRouteList, resp, h.cacheTTL); err != nil {
			h.logger.Debug("route list cache set failed", "error", err)
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *RouteHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing route id")
		return
	}

	var cached domain.Route
	if h.cache != nil {
		if ok, err := h.cache.GetJSONCompressed(r.Context(), cache.KeyRoute(id), &cached); err == nil && ok {
			respondJSON(w, http.StatusOK, &cached)
			return
		}
	}

	route, err := h.routes.GetRoute(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.SetJSONCompressed(r.Context(), cache.KeyRoute(id), route, h.cacheTTL); err != nil {
			h.logger.Debug("route cache set failed", "route_id", id, "error", err)
		}
	}
	respondJSON(w, http.StatusOK, route)
}

type StopsResponse struct {
	Stops      []*domain.Stop `json:"stops"`
	Count      int            `json:"count"`
	ServerTime time.Time      `json:"server_time"`
}

func (h *RouteHandler) ListStops(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing route id")
		return
	}

	var cached StopsResponse
	if h.cache != nil {
		if ok, err := h.cache.GetJSON(r.Context(), cache.KeyRouteStops(id), &cached); err == nil && ok {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	// verify the route exists so an unknown id is a 404, not an empty list
	if _, err := h.routes.GetRoute(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}

	stops, err := h.routes.ListStops(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	resp := StopsResponse{Stops: stops, Count: len(stops), ServerTime: time.Now()}

	if h.cache != nil {
		if err := h.cache.SetJSON(r.Context(), cache.KeyRouteStops(id), resp, h.cacheTTL); err != nil {
			h.logger.Debug("stops cache set failed", "route_id", id, "error", err)
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *RouteHandler) GetStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing stop id")
		return
	}

	stop, err := h.routes.GetStop(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stop)
}

type polylineUpdateRequest struct {
	Polyline [][2]float64 `json:"polyline"`
	Loop     bool         `json:"loop"`
}

// UpdatePolyline replaces a route's geometry. The derived geometry
// index and the Redis payloads keyed by the route are invalidated
// before the response goes out.
func (h *RouteHandler) UpdatePolyline(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing route id")
		return
	}

	var req polylineUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Polyline) < 2 {
		respondError(w, http.StatusUnprocessableEntity, "polyline needs at least 2 points")
		return
	}

	polyline := make([]domain.LatLng, len(req.Polyline))
	for i, p := range req.Polyline {
		if p[0] < -90 || p[0] > 90 || p[1] < -180 || p[1] > 180 {
			respondError(w, http.StatusUnprocessableEntity, "coordinate out of range")
			return
		}
		polyline[i] = domain.LatLng{Lat: p[0], Lon: p[1]}
	}

	if err := h.routes.SetPolyline(r.Context(), id, polyline, req.Loop); err != nil {
		respondDomainError(w, err)
		return
	}

	h.geometry.Invalidate(id)
	if h.cache != nil {
		if err := h.cache.DeletePattern(r.Context(), cache.KeyRoutePattern(id)); err != nil {
			h.logger.Warn("route cache invalidation failed", "route_id", id, "error", err)
		}
		if err := h.cache.Delete(r.Context(), cache.KeyRouteList); err != nil {
			h.logger.Warn("route list invalidation failed", "error", err)
		}
	}

	h.logger.Info("route polyline updated", "route_id", id, "points", len(polyline), "loop", req.Loop)
	h.sink.Publish("route:"+id, map[string]any{"event": "polyline_updated", "points": len(polyline)})

	respondJSON(w, http.StatusOK, map[string]any{"updated": true, "route_id": id})
}
