package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WMO weather interpretation codes used by Open-Meteo.
var weatherCodes = map[int]string{
	0:  "clear sky",
	1:  "mainly clear",
	2:  "partly cloudy",
	3:  "overcast",
	45: "foggy",
	48: "depositing rime fog",
	51: "light drizzle",
	53: "moderate drizzle",
	55: "dense drizzle",
	61: "slight rain",
	63: "moderate rain",
	65: "heavy rain",
	71: "slight snow",
	73: "moderate snow",
	75: "heavy snow",
	77: "snow grains",
	80: "slight rain showers",
	81: "moderate rain showers",
	82: "violent rain showers",
	85: "slight snow showers",
	86: "heavy snow showers",
	95: "thunderstorm",
	96: "thunderstorm with slight hail",
	99: "thunderstorm with heavy hail",
}

const weatherUserAgent = "greta-voice-agent/1.0"

// WeatherService answers weather questions by geocoding the location with
// Nominatim and fetching the forecast from Open-Meteo. Neither service needs
// an API key.
type WeatherService struct {
	client          *http.Client
	geocodeBaseURL  string
	forecastBaseURL string
}

type WeatherOption func(*WeatherService)

// WithBaseURLs overrides the upstream endpoints, used by tests.
func WithBaseURLs(geocode, forecast string) WeatherOption {
	return func(s *WeatherService) {
		s.geocodeBaseURL = geocode
		s.forecastBaseURL = forecast
	}
}

func WithHTTPClient(c *http.Client) WeatherOption {
	return func(s *WeatherService) { s.client = c }
}

func NewWeatherService(opts ...WeatherOption) *WeatherService {
	s := &WeatherService{
		client:          &http.Client{Timeout: 10 * time.Second},
		geocodeBaseURL:  "https://nominatim.openstreetmap.org/search",
		forecastBaseURL: "https://api.open-meteo.com/v1/forecast",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is a geocoded place.
type Location struct {
	Lat         float64
	Lon         float64
	DisplayName string
}

// Geocode resolves a place name to coordinates. A nil result means the
// location was not found.
func (s *WeatherService) Geocode(ctx context.Context, location string) (*Location, error) {
	q := url.Values{}
	q.Set("q", location)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.geocodeBaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	// Nominatim rejects requests without an identifying User-Agent.
	req.Header.Set("User-Agent", weatherUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode status %d", resp.StatusCode)
	}

	var results []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("geocode decode: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	var loc Location
	if _, err := fmt.Sscanf(results[0].Lat, "%f", &loc.Lat); err != nil {
		return nil, fmt.Errorf("geocode lat %q: %w", results[0].Lat, err)
	}
	if _, err := fmt.Sscanf(results[0].Lon, "%f", &loc.Lon); err != nil {
		return nil, fmt.Errorf("geocode lon %q: %w", results[0].Lon, err)
	}
	loc.DisplayName = results[0].DisplayName
	return &loc, nil
}

type forecastResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		Humidity    float64 `json:"relative_humidity_2m"`
		FeelsLike   float64 `json:"apparent_temperature"`
		WeatherCode int     `json:"weather_code"`
		WindSpeed   float64 `json:"wind_speed_10m"`
	} `json:"current"`
	Daily struct {
		Time             []string  `json:"time"`
		TemperatureMax   []float64 `json:"temperature_2m_max"`
		TemperatureMin   []float64 `json:"temperature_2m_min"`
		PrecipitationMax []float64 `json:"precipitation_probability_max"`
		WeatherCode      []int     `json:"weather_code"`
	} `json:"daily"`
}

func (s *WeatherService) forecast(ctx context.Context, lat, lon float64) (*forecastResponse, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.6f", lat))
	q.Set("longitude", fmt.Sprintf("%.6f", lon))
	q.Set("current", "temperature_2m,relative_humidity_2m,apparent_temperature,weather_code,wind_speed_10m")
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_probability_max,weather_code")
	q.Set("timezone", "auto")
	q.Set("forecast_days", "3")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.forecastBaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forecast request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forecast status %d", resp.StatusCode)
	}

	var out forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("forecast decode: %w", err)
	}
	return &out, nil
}

// Report answers a weather question with a sentence meant to be spoken
// aloud. Lookup failures come back as apologetic speakable text rather than
// errors so the assistant can relay them directly.
func (s *WeatherService) Report(ctx context.Context, location string) string {
	loc, err := s.Geocode(ctx, location)
	if err != nil || loc == nil {
		return fmt.Sprintf("Sorry, I couldn't find the location '%s'. Please try a different city or place name.", location)
	}

	fc, err := s.forecast(ctx, loc.Lat, loc.Lon)
	if err != nil {
		return fmt.Sprintf("Sorry, I couldn't fetch weather data for %s. Please try again later.", location)
	}

	conditions, ok := weatherCodes[fc.Current.WeatherCode]
	if !ok {
		conditions = "unknown conditions"
	}

	forecastInfo := ""
	d := fc.Daily
	if len(d.Time) > 0 && len(d.TemperatureMax) >= 2 && len(d.TemperatureMin) >= 2 {
		tomorrowConditions := "unknown"
		if len(d.WeatherCode) > 1 {
			if c, ok := weatherCodes[d.WeatherCode[1]]; ok {
				tomorrowConditions = c
			}
		}
		tomorrowPrecip := 0.0
		if len(d.PrecipitationMax) > 1 {
			tomorrowPrecip = d.PrecipitationMax[1]
		}
		forecastInfo = fmt.Sprintf(
			" Tomorrow's forecast: high of %g degrees, low of %g degrees, %s, %g%% chance of precipitation.",
			d.TemperatureMax[1], d.TemperatureMin[1], tomorrowConditions, tomorrowPrecip,
		)
	}

	shortLocation := loc.DisplayName
	if idx := strings.Index(shortLocation, ","); idx >= 0 {
		shortLocation = shortLocation[:idx]
	}

	return fmt.Sprintf(
		"Current weather in %s: %g degrees Celsius, feels like %g degrees. Conditions: %s. Humidity: %g%%. Wind speed: %g kilometers per hour.%s",
		shortLocation, fc.Current.Temperature, fc.Current.FeelsLike, conditions, fc.Current.Humidity, fc.Current.WindSpeed, forecastInfo,
	)
}
