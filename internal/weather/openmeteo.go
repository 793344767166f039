package weather

import (
	"context"
)

const openMeteoURL = "https://api.open-meteo.com"

// OpenMeteo reads wind from the keyless Open-Meteo forecast API.
type OpenMeteo struct {
	upstream *upstream
}

func newOpenMeteo(cfg *ProviderConfig) *OpenMeteo {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openMeteoURL
	}
	return &OpenMeteo{upstream: newUpstream(ProviderOpenMeteo, baseURL, cfg)}
}

// Name implements Provider.
func (p *OpenMeteo) Name() string {
	return ProviderOpenMeteo
}

// Wind implements Provider.
func (p *OpenMeteo) Wind(ctx context.Context, lat, lon float64) (Wind, error) {
	var payload struct {
		Current *struct {
			WindSpeed     *float64 `json:"wind_speed_10m"`
			WindDirection *float64 `json:"wind_direction_10m"`
			WindGusts     *float64 `json:"wind_gusts_10m"`
		} `json:"current"`
	}

	err := p.upstream.get(ctx, "/v1/forecast", map[string]string{
		"latitude":        coordinate(lat),
		"longitude":       coordinate(lon),
		"current":         "wind_speed_10m,wind_direction_10m,wind_gusts_10m",
		"wind_speed_unit": "ms",
	}, &payload)
	if err != nil {
		return Wind{}, err
	}
	if payload.Current == nil || payload.Current.WindSpeed == nil || payload.Current.WindDirection == nil {
		return Wind{}, errMalformed
	}

	return Wind{
		Speed:            *payload.Current.WindSpeed,
		DirectionDegrees: *payload.Current.WindDirection,
		Gust:             payload.Current.WindGusts,
	}, nil
}
