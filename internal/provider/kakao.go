package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const kakaoDefaultBaseURL = "https://apis-navi.kakaomobility.com"

// Kakao calls the Kakao Mobility directions API.
type Kakao struct {
	baseURL    string
	restAPIKey string
	httpClient *http.Client
}

func NewKakao(baseURL, restAPIKey string) *Kakao {
	if baseURL == "" {
		baseURL = kakaoDefaultBaseURL
	}
	return &Kakao{
		baseURL:    baseURL,
		restAPIKey: restAPIKey,
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

func (k *Kakao) Name() string { return "kakao" }

type kakaoResponse struct {
	Routes []struct {
		Summary struct {
			Distance *float64 `json:"distance"`
			Duration *float64 `json:"duration"`
		} `json:"summary"`
	} `json:"routes"`
}

func (k *Kakao) DistanceDuration(ctx context.Context, originLat, originLon, destLat, destLon float64) (float64, int, error) {
	if k.restAPIKey == "" {
		return 0, 0, fmt.Errorf("kakao: %w: KAKAO_REST_KEY not set", ErrUnavailable)
	}

	params := url.Values{}
	params.Set("origin", fmt.Sprintf("%f,%f", originLon, originLat))
	params.Set("destination", fmt.Sprintf("%f,%f", destLon, destLat))
	params.Set("priority", "RECOMMEND")
	params.Set("summary", "true")

	reqURL := fmt.Sprintf("%s/v1/directions?%s", k.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("kakao: creating request: %w", err)
	}
	req.Header.Set("Authorization", "KakaoAK "+k.restAPIKey)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return 0, 0, wrapTransportErr("kakao", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("kakao: %w: status %d", ErrBadResponse, resp.StatusCode)
	}

	var parsed kakaoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, 0, fmt.Errorf("kakao: %w: decoding response: %v", ErrBadResponse, err)
	}
	if len(parsed.Routes) == 0 {
		return 0, 0, fmt.Errorf("kakao: %w: no routes in response", ErrBadResponse)
	}
	summary := parsed.Routes[0].Summary
	if summary.Distance == nil || summary.Duration == nil {
		return 0, 0, fmt.Errorf("kakao: %w: summary missing distance/duration", ErrBadResponse)
	}
	return *summary.Distance, int(*summary.Duration), nil
}
