package sources

import (
	"context"
	"hash/fnv"
	"math/rand"
	"time"
)

// Synthetic adapters answer from seeded pseudo-data so offline runs and tests
// stay deterministic for a given place.

type synthAdapter struct {
	baseAdapter
}

func newSynthAdapter(id string, kind Kind) *synthAdapter {
	return &synthAdapter{baseAdapter{id, kind, 50 * time.Millisecond}}
}

func seededRand(parts ...string) *rand.Rand {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

func (a *synthAdapter) Fetch(ctx context.Context, req Request) (Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := seededRand(req.Place, string(a.kind))
	switch a.kind {
	case KindPointContext:
		lat, lon := req.Lat, req.Lon
		if !req.HasPoint {
			if p, q, ok := ParseLatLon(req.Place); ok {
				lat, lon = p, q
			} else {
				lat = -60 + r.Float64()*120
				lon = -180 + r.Float64()*360
			}
		}
		return PointContext{Name: req.Place, Lat: lat, Lon: lon, Timezone: "UTC"}, nil
	case KindObservations:
		return Observations{
			Temp:       45 + r.Float64()*40,
			Wind:       2 + r.Float64()*18,
			Gust:       5 + r.Float64()*25,
			Precip:     0,
			Humidity:   30 + r.Float64()*50,
			Code:       []int{0, 1, 2, 3, 61}[r.Intn(5)],
			Units:      req.Units,
			ObservedAt: time.Now().UTC().Truncate(time.Hour),
		}, nil
	case KindOutlook:
		hours := int(req.Horizon.Hours())
		if hours <= 0 {
			hours = 24
		}
		start := time.Now().UTC().Truncate(time.Hour)
		base := 45 + r.Float64()*30
		periods := make([]OutlookPeriod, 0, hours)
		for i := 0; i < hours; i++ {
			periods = append(periods, OutlookPeriod{
				At:         start.Add(time.Duration(i) * time.Hour),
				Temp:       base + 8*float64(i%12)/12 - 4,
				PrecipProb: float64(r.Intn(40)),
				Wind:       4 + r.Float64()*12,
				Code:       []int{0, 1, 2, 3}[r.Intn(4)],
			})
		}
		return Outlook{Periods: periods, Units: req.Units}, nil
	case KindAlerts:
		// Quiet weather most of the time, a watch now and then.
		list := AlertList{}
		if r.Intn(4) == 0 {
			list.Alerts = append(list.Alerts, Alert{
				Event:    "Wind Advisory",
				Severity: "Moderate",
				Headline: "Wind Advisory in effect",
				Area:     req.Place,
				Expires:  time.Now().UTC().Add(6 * time.Hour),
			})
		}
		return list, nil
	case KindProfile:
		return ConvectiveProfile{
			CAPE:        float64(r.Intn(1500)),
			CIN:         -float64(r.Intn(80)),
			Shear:       10 + r.Float64()*30,
			LiftedIndex: -2 + r.Float64()*6,
		}, nil
	case KindDiscussion:
		return Discussion{
			Office: "SYN",
			Excerpt: "Synopsis... Broad upper ridging holds through the period with " +
				"seasonable temperatures. No significant hazards expected. Winds stay " +
				"light outside of afternoon mixing.",
		}, nil
	default:
		return nil, errNoPoint
	}
}

// synthRegionAdapter serves the worldview roll-up offline. The alert roster is
// fixed so repeated runs compare cleanly.
type synthRegionAdapter struct {
	baseAdapter
	region string
	cities []regionCity
}

func newSynthRegionAdapter(id, region string, cities []regionCity) *synthRegionAdapter {
	return &synthRegionAdapter{baseAdapter{id, KindRegion, 50 * time.Millisecond}, region, cities}
}

func (a *synthRegionAdapter) Fetch(ctx context.Context, req Request) (Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch a.id {
	case SourceUSAlerts:
		alerts := []RegionAlert{{Event: "Heat Advisory", Count: 18, Areas: []string{"Texas", "Arizona", "New Mexico"}}}
		if hasHazard(req.Hazards, "severe") {
			alerts = []RegionAlert{
				{Event: "Tornado Warning", Count: 2, Areas: []string{"Oklahoma"}},
				{Event: "Flash Flood Warning", Count: 4, Areas: []string{"Missouri", "Arkansas"}},
				{Event: "Severe Thunderstorm Warning", Count: 7, Areas: []string{"Kansas", "Nebraska"}},
			}
		}
		return RegionSamples{Region: a.region, Alerts: alerts}, nil
	case SourceEUAlerts:
		alerts := []RegionAlert{{Event: "Wind Warning", Count: 6, Areas: []string{"United Kingdom", "Netherlands"}}}
		if hasHazard(req.Hazards, "severe") {
			alerts = []RegionAlert{{Event: "Severe Wind Warning", Count: 3, Areas: []string{"United Kingdom"}}}
		}
		return RegionSamples{Region: a.region, Alerts: alerts}, nil
	}
	samples := make([]RegionSample, 0, len(a.cities))
	for _, c := range a.cities {
		r := seededRand(a.region, c.name)
		samples = append(samples, RegionSample{
			City:       c.name,
			Temp:       40 + r.Float64()*45,
			Wind:       3 + r.Float64()*15,
			Gust:       6 + r.Float64()*22,
			PrecipProb: float64(r.Intn(60)),
		})
	}
	return RegionSamples{Region: a.region, Samples: samples}, nil
}

func hasHazard(hazards []string, want string) bool {
	for _, h := range hazards {
		if h == want {
			return true
		}
	}
	return false
}
