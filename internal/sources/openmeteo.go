package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammad-safakhou/wxbrief/internal/httpx"
)

// Source ids, also the keys of the caller's priority list.
const (
	SourceGeocode    = "geocode"
	SourceObs        = "obs"
	SourceOutlook    = "outlook"
	SourceAlerts     = "alerts"
	SourceProfile    = "profile"
	SourceDiscussion = "discussion"
	SourceUSObs      = "us_obs"
	SourceEUObs      = "eu_obs"
	SourceUSAlerts   = "us_alerts"
	SourceEUAlerts   = "eu_alerts"
)

const (
	defaultOpenMeteoURL  = "https://api.open-meteo.com"
	defaultGeocodeURL    = "https://geocoding-api.open-meteo.com"
	defaultNWSURL        = "https://api.weather.gov"
	defaultForecastURL   = "https://forecast.weather.gov"
	defaultMeteoAlarmURL = "https://feeds.meteoalarm.org"
)

// Options configures the live adapter set. Zero fields take defaults.
type Options struct {
	Client        *httpx.Client
	Timeout       time.Duration
	UserAgent     string
	OpenMeteoURL  string
	GeocodeURL    string
	NWSURL        string
	ForecastURL   string
	MeteoAlarmURL string
}

func (o Options) withDefaults() Options {
	if o.Client == nil {
		o.Client = httpx.NewClient(10*time.Second, 1, 300*time.Millisecond)
	}
	if o.Timeout == 0 {
		o.Timeout = 3 * time.Second
	}
	if o.UserAgent == "" {
		o.UserAgent = "wxbrief (github.com/mohammad-safakhou/wxbrief)"
	}
	if o.OpenMeteoURL == "" {
		o.OpenMeteoURL = defaultOpenMeteoURL
	}
	if o.GeocodeURL == "" {
		o.GeocodeURL = defaultGeocodeURL
	}
	if o.NWSURL == "" {
		o.NWSURL = defaultNWSURL
	}
	if o.ForecastURL == "" {
		o.ForecastURL = defaultForecastURL
	}
	if o.MeteoAlarmURL == "" {
		o.MeteoAlarmURL = defaultMeteoAlarmURL
	}
	return o
}

func (o Options) headers() map[string]string {
	return map[string]string{"User-Agent": o.UserAgent, "Accept": "application/json"}
}

type baseAdapter struct {
	id      string
	kind    Kind
	timeout time.Duration
}

func (b baseAdapter) ID() string             { return b.id }
func (b baseAdapter) Kind() Kind             { return b.kind }
func (b baseAdapter) Timeout() time.Duration { return b.timeout }

// geocodeAdapter resolves a place name via the Open-Meteo geocoding API. A
// raw "lat,lon" place or an already-resolved request short-circuits without a
// network call.
type geocodeAdapter struct {
	baseAdapter
	opts Options
}

func newGeocodeAdapter(opts Options) *geocodeAdapter {
	return &geocodeAdapter{baseAdapter{SourceGeocode, KindPointContext, opts.Timeout}, opts}
}

func (a *geocodeAdapter) Fetch(ctx context.Context, req Request) (Payload, error) {
	if req.HasPoint {
		return PointContext{Name: req.Place, Lat: req.Lat, Lon: req.Lon}, nil
	}
	if lat, lon, ok := ParseLatLon(req.Place); ok {
		return PointContext{Name: req.Place, Lat: lat, Lon: lon}, nil
	}
	u := fmt.Sprintf("%s/v1/search?name=%s&count=1", a.opts.GeocodeURL, url.QueryEscape(req.Place))
	var out struct {
		Results []struct {
			Name      string  `json:"name"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Country   string  `json:"country"`
			Admin1    string  `json:"admin1"`
			Timezone  string  `json:"timezone"`
		} `json:"results"`
	}
	if err := a.opts.Client.GetJSON(ctx, u, a.opts.headers(), &out); err != nil {
		return nil, err
	}
	if len(out.Results) == 0 {
		return nil, fmt.Errorf("no match for %q", req.Place)
	}
	r := out.Results[0]
	return PointContext{
		Name:     r.Name,
		Admin:    r.Admin1,
		Country:  r.Country,
		Lat:      r.Latitude,
		Lon:      r.Longitude,
		Timezone: r.Timezone,
	}, nil
}

// obsAdapter fetches current conditions from Open-Meteo.
type obsAdapter struct {
	baseAdapter
	opts Options
}

func newObsAdapter(opts Options) *obsAdapter {
	return &obsAdapter{baseAdapter{SourceObs, KindObservations, opts.Timeout}, opts}
}

func (a *obsAdapter) Fetch(ctx context.Context, req Request) (Payload, error) {
	if !req.HasPoint {
		return nil, errNoPoint
	}
	u := fmt.Sprintf(
		"%s/v1/forecast?latitude=%.4f&longitude=%.4f&current=temperature_2m,relative_humidity_2m,precipitation,weather_code,wind_speed_10m,wind_gusts_10m%s",
		a.opts.OpenMeteoURL, req.Lat, req.Lon, unitParams(req.Units),
	)
	var out struct {
		Current struct {
			Time          string  `json:"time"`
			Temperature   float64 `json:"temperature_2m"`
			Humidity      float64 `json:"relative_humidity_2m"`
			Precipitation float64 `json:"precipitation"`
			WeatherCode   int     `json:"weather_code"`
			WindSpeed     float64 `json:"wind_speed_10m"`
			WindGusts     float64 `json:"wind_gusts_10m"`
		} `json:"current"`
	}
	if err := a.opts.Client.GetJSON(ctx, u, a.opts.headers(), &out); err != nil {
		return nil, err
	}
	observedAt, _ := time.Parse("2006-01-02T15:04", out.Current.Time)
	return Observations{
		Temp:       out.Current.Temperature,
		Wind:       out.Current.WindSpeed,
		Gust:       out.Current.WindGusts,
		Precip:     out.Current.Precipitation,
		Humidity:   out.Current.Humidity,
		Code:       out.Current.WeatherCode,
		Units:      req.Units,
		ObservedAt: observedAt,
	}, nil
}

// outlookAdapter fetches the hourly forecast slice covering the horizon.
type outlookAdapter struct {
	baseAdapter
	opts Options
}

func newOutlookAdapter(opts Options) *outlookAdapter {
	return &outlookAdapter{baseAdapter{SourceOutlook, KindOutlook, opts.Timeout}, opts}
}

func (a *outlookAdapter) Fetch(ctx context.Context, req Request) (Payload, error) {
	if !req.HasPoint {
		return nil, errNoPoint
	}
	hours := int(req.Horizon.Hours())
	if hours <= 0 {
		hours = 24
	}
	if hours > 168 {
		hours = 168
	}
	u := fmt.Sprintf(
		"%s/v1/forecast?latitude=%.4f&longitude=%.4f&hourly=temperature_2m,precipitation_probability,wind_speed_10m,weather_code&forecast_hours=%d%s",
		a.opts.OpenMeteoURL, req.Lat, req.Lon, hours, unitParams(req.Units),
	)
	var out struct {
		Hourly struct {
			Time          []string  `json:"time"`
			Temperature   []float64 `json:"temperature_2m"`
			PrecipProb    []float64 `json:"precipitation_probability"`
			WindSpeed     []float64 `json:"wind_speed_10m"`
			WeatherCode   []int     `json:"weather_code"`
		} `json:"hourly"`
	}
	if err := a.opts.Client.GetJSON(ctx, u, a.opts.headers(), &out); err != nil {
		return nil, err
	}
	periods := make([]OutlookPeriod, 0, len(out.Hourly.Time))
	for i, ts := range out.Hourly.Time {
		at, err := time.Parse("2006-01-02T15:04", ts)
		if err != nil {
			continue
		}
		p := OutlookPeriod{At: at}
		if i < len(out.Hourly.Temperature) {
			p.Temp = out.Hourly.Temperature[i]
		}
		if i < len(out.Hourly.PrecipProb) {
			p.PrecipProb = out.Hourly.PrecipProb[i]
		}
		if i < len(out.Hourly.WindSpeed) {
			p.Wind = out.Hourly.WindSpeed[i]
		}
		if i < len(out.Hourly.WeatherCode) {
			p.Code = out.Hourly.WeatherCode[i]
		}
		periods = append(periods, p)
	}
	return Outlook{Periods: periods, Units: req.Units}, nil
}

// profileAdapter fetches instability parameters from Open-Meteo.
type profileAdapter struct {
	baseAdapter
	opts Options
}

func newProfileAdapter(opts Options) *profileAdapter {
	return &profileAdapter{baseAdapter{SourceProfile, KindProfile, opts.Timeout}, opts}
}

func (a *profileAdapter) Fetch(ctx context.Context, req Request) (Payload, error) {
	if !req.HasPoint {
		return nil, errNoPoint
	}
	u := fmt.Sprintf(
		"%s/v1/forecast?latitude=%.4f&longitude=%.4f&hourly=cape,convective_inhibition,lifted_index,wind_speed_850hPa&forecast_hours=1",
		a.opts.OpenMeteoURL, req.Lat, req.Lon,
	)
	var out struct {
		Hourly struct {
			CAPE        []float64 `json:"cape"`
			CIN         []float64 `json:"convective_inhibition"`
			LiftedIndex []float64 `json:"lifted_index"`
			Wind850     []float64 `json:"wind_speed_850hPa"`
		} `json:"hourly"`
	}
	if err := a.opts.Client.GetJSON(ctx, u, a.opts.headers(), &out); err != nil {
		return nil, err
	}
	p := ConvectiveProfile{}
	if len(out.Hourly.CAPE) > 0 {
		p.CAPE = out.Hourly.CAPE[0]
	}
	if len(out.Hourly.CIN) > 0 {
		p.CIN = out.Hourly.CIN[0]
	}
	if len(out.Hourly.LiftedIndex) > 0 {
		p.LiftedIndex = out.Hourly.LiftedIndex[0]
	}
	if len(out.Hourly.Wind850) > 0 {
		p.Shear = out.Hourly.Wind850[0]
	}
	return p, nil
}

// regionObsAdapter samples several cities in one Open-Meteo request.
type regionObsAdapter struct {
	baseAdapter
	opts   Options
	region string
	cities []regionCity
}

type regionCity struct {
	name string
	lat  float64
	lon  float64
}

func newRegionObsAdapter(id, region string, cities []regionCity, opts Options) *regionObsAdapter {
	return &regionObsAdapter{baseAdapter{id, KindRegion, opts.Timeout}, opts, region, cities}
}

func (a *regionObsAdapter) Fetch(ctx context.Context, req Request) (Payload, error) {
	lats := make([]string, len(a.cities))
	lons := make([]string, len(a.cities))
	for i, c := range a.cities {
		lats[i] = strconv.FormatFloat(c.lat, 'f', 2, 64)
		lons[i] = strconv.FormatFloat(c.lon, 'f', 2, 64)
	}
	u := fmt.Sprintf(
		"%s/v1/forecast?latitude=%s&longitude=%s&current=temperature_2m,wind_speed_10m,wind_gusts_10m&hourly=precipitation_probability&forecast_hours=1%s",
		a.opts.OpenMeteoURL, strings.Join(lats, ","), strings.Join(lons, ","), unitParams(req.Units),
	)
	var out []struct {
		Current struct {
			Temperature float64 `json:"temperature_2m"`
			WindSpeed   float64 `json:"wind_speed_10m"`
			WindGusts   float64 `json:"wind_gusts_10m"`
		} `json:"current"`
		Hourly struct {
			PrecipProb []float64 `json:"precipitation_probability"`
		} `json:"hourly"`
	}
	if err := a.opts.Client.GetJSON(ctx, u, a.opts.headers(), &out); err != nil {
		return nil, err
	}
	samples := make([]RegionSample, 0, len(a.cities))
	for i, c := range a.cities {
		if i >= len(out) {
			break
		}
		s := RegionSample{
			City: c.name,
			Temp: out[i].Current.Temperature,
			Wind: out[i].Current.WindSpeed,
			Gust: out[i].Current.WindGusts,
		}
		if pp := out[i].Hourly.PrecipProb; len(pp) > 0 {
			s.PrecipProb = pp[0]
		}
		samples = append(samples, s)
	}
	return RegionSamples{Region: a.region, Samples: samples}, nil
}

var errNoPoint = fmt.Errorf("no coordinates resolved for request")

// ParseLatLon accepts "lat,lon" input so users can skip geocoding.
func ParseLatLon(place string) (lat, lon float64, ok bool) {
	parts := strings.Split(strings.TrimSpace(place), ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLat != nil || errLon != nil {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

func unitParams(units string) string {
	if units == "metric" {
		return ""
	}
	return "&temperature_unit=fahrenheit&wind_speed_unit=mph&precipitation_unit=inch"
}
