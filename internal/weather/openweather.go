package weather

import (
	"context"
)

const openWeatherURL = "https://api.openweathermap.org"

// OpenWeather reads wind from the OpenWeatherMap current weather API.
type OpenWeather struct {
	upstream *upstream
	apiKey   string
}

func newOpenWeather(cfg *ProviderConfig) *OpenWeather {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openWeatherURL
	}
	return &OpenWeather{
		upstream: newUpstream(ProviderOpenWeather, baseURL, cfg),
		apiKey:   cfg.APIKey,
	}
}

// Name implements Provider.
func (p *OpenWeather) Name() string {
	return ProviderOpenWeather
}

// Wind implements Provider.
func (p *OpenWeather) Wind(ctx context.Context, lat, lon float64) (Wind, error) {
	var payload struct {
		Wind *struct {
			Gust  *float64 `json:"gust"`
			Speed float64  `json:"speed"`
			Deg   float64  `json:"deg"`
		} `json:"wind"`
	}

	err := p.upstream.get(ctx, "/data/2.5/weather", map[string]string{
		"lat":   coordinate(lat),
		"lon":   coordinate(lon),
		"appid": p.apiKey,
		"units": "metric",
	}, &payload)
	if err != nil {
		return Wind{}, err
	}
	if payload.Wind == nil {
		return Wind{}, errMalformed
	}

	return Wind{
		Speed:            payload.Wind.Speed,
		DirectionDegrees: payload.Wind.Deg,
		Gust:             payload.Wind.Gust,
	}, nil
}
