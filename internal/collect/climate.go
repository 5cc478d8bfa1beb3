package collect

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

// DefaultClimateURL is the OpenWeatherMap current-weather endpoint.
const DefaultClimateURL = "https://api.openweathermap.org/data/2.5/weather"

// ClimateSnapshot is the current weather at a country's reference location.
type ClimateSnapshot struct {
	Location    string `json:"location"`
	Temperature string `json:"temperature"`
	Humidity    string `json:"humidity"`
	Conditions  string `json:"conditions"`
	WindSpeed   string `json:"wind_speed"`

	TemperatureC int `json:"temperature_c"`
	HumidityPct  int `json:"humidity_pct"`
	WindKPH      int `json:"wind_kph"`
}

// ClimateClient queries OpenWeatherMap by country name.
type ClimateClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     logrus.FieldLogger
}

// NewClimateClient creates a climate adapter. An empty apiKey makes every
// fetch Unavailable.
func NewClimateClient(baseURL, apiKey string, client *http.Client, log logrus.FieldLogger) *ClimateClient {
	if baseURL == "" {
		baseURL = DefaultClimateURL
	}
	return &ClimateClient{baseURL: baseURL, apiKey: apiKey, client: client, log: log}
}

func (c *ClimateClient) Name() ProviderName { return Climate }

// IsConfigured returns whether the API key is available.
func (c *ClimateClient) IsConfigured() bool {
	return c.apiKey != ""
}

type owmResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// Fetch issues one request using the raw country name as the location.
func (c *ClimateClient) Fetch(ctx context.Context, req Request) Result[ClimateSnapshot] {
	if !c.IsConfigured() {
		return Unavailable[ClimateSnapshot]("API key not configured")
	}
	if req.Name == "" {
		return Unavailable[ClimateSnapshot](ReasonNoIdentifier)
	}

	params := url.Values{
		"q":     {req.Name},
		"units": {"metric"},
	}
	display := c.baseURL + "?" + params.Encode()
	params.Set("appid", c.apiKey)

	var body owmResponse
	if err := getJSON(ctx, c.client, c.baseURL+"?"+params.Encode(), display, &body); err != nil {
		c.log.WithError(err).WithField("country", req.Name).Warn("Climate fetch failed")
		return Unavailable[ClimateSnapshot](err.Error())
	}

	snap := ClimateSnapshot{
		Location:     body.Name,
		TemperatureC: int(math.Round(body.Main.Temp)),
		HumidityPct:  int(math.Round(body.Main.Humidity)),
		WindKPH:      int(math.Round(body.Wind.Speed * 3.6)),
		Conditions:   NotAvailable,
	}
	if snap.Location == "" {
		snap.Location = req.Name
	}
	snap.Temperature = fmt.Sprintf("%d°C", snap.TemperatureC)
	snap.Humidity = fmt.Sprintf("%d%%", snap.HumidityPct)
	snap.WindSpeed = fmt.Sprintf("%d km/h", snap.WindKPH)
	if len(body.Weather) > 0 && body.Weather[0].Description != "" {
		snap.Conditions = body.Weather[0].Description
	}
	return Success(snap)
}
