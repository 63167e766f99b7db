package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const tmapDefaultBaseURL = "https://apis.openapi.sk.com"

// Tmap calls the SK Tmap car-routing API, which reflects live
// traffic in its summaries.
type Tmap struct {
	baseURL    string
	appKey     string
	httpClient *http.Client
}

func NewTmap(baseURL, appKey string) *Tmap {
	if baseURL == "" {
		baseURL = tmapDefaultBaseURL
	}
	return &Tmap{
		baseURL: baseURL,
		appKey:  appKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (t *Tmap) Name() string { return "tmap" }

type tmapRequest struct {
	ReqCoordType string  `json:"reqCoordType"`
	ResCoordType string  `json:"resCoordType"`
	Sort         string  `json:"sort"`
	StartX       float64 `json:"startX"`
	StartY       float64 `json:"startY"`
	EndX         float64 `json:"endX"`
	EndY         float64 `json:"endY"`
}

type tmapResponse struct {
	Distance *float64 `json:"distance"`
	Duration *float64 `json:"duration"`
	Features []struct {
		Properties struct {
			TotalDistance *float64 `json:"totalDistance"`
			TotalTime     *float64 `json:"totalTime"`
		} `json:"properties"`
	} `json:"features"`
}

func (t *Tmap) DistanceDuration(ctx context.Context, originLat, originLon, destLat, destLon float64) (float64, int, error) {
	if t.appKey == "" {
		return 0, 0, fmt.Errorf("tmap: %w: TMAP_APP_KEY not set", ErrUnavailable)
	}

	body, err := json.Marshal(tmapRequest{
		ReqCoordType: "WGS84GEO",
		ResCoordType: "WGS84GEO",
		Sort:         "index",
		StartX:       originLon,
		StartY:       originLat,
		EndX:         destLon,
		EndY:         destLat,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("tmap: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/tmap/routes?version=1", bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("tmap: creating request: %w", err)
	}
	req.Header.Set("appKey", t.appKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return 0, 0, wrapTransportErr("tmap", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("tmap: %w: status %d", ErrBadResponse, resp.StatusCode)
	}

	var parsed tmapResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, 0, fmt.Errorf("tmap: %w: decoding response: %v", ErrBadResponse, err)
	}

	// route-level summary first, then feature totals
	if parsed.Distance != nil && parsed.Duration != nil {
		return *parsed.Distance, int(*parsed.Duration), nil
	}
	var dist, dur *float64
	for _, f := range parsed.Features {
		if f.Properties.TotalDistance != nil {
			dist = f.Properties.TotalDistance
		}
		if f.Properties.TotalTime != nil {
			dur = f.Properties.TotalTime
		}
	}
	if dist != nil && dur != nil {
		return *dist, int(*dur), nil
	}
	return 0, 0, fmt.Errorf("tmap: %w: distance/time not found in response", ErrBadResponse)
}
