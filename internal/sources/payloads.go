package sources

import "time"

// PointContext resolves a place to coordinates and locale metadata.
type PointContext struct {
	Name     string  `json:"name"`
	Admin    string  `json:"admin,omitempty"`
	Country  string  `json:"country,omitempty"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Timezone string  `json:"timezone,omitempty"`
}

func (PointContext) Kind() Kind { return KindPointContext }

// Observations is the current surface snapshot at a point.
type Observations struct {
	Temp       float64   `json:"temp"`
	Wind       float64   `json:"wind"`
	Gust       float64   `json:"gust"`
	Precip     float64   `json:"precip"`
	Humidity   float64   `json:"humidity"`
	Code       int       `json:"code"`
	Units      string    `json:"units"`
	ObservedAt time.Time `json:"observed_at"`
}

func (Observations) Kind() Kind { return KindObservations }

// Outlook is an hourly forecast slice over the query horizon.
type Outlook struct {
	Periods []OutlookPeriod `json:"periods"`
	Units   string          `json:"units"`
}

// OutlookPeriod is one forecast step.
type OutlookPeriod struct {
	At         time.Time `json:"at"`
	Temp       float64   `json:"temp"`
	PrecipProb float64   `json:"precip_prob"`
	Wind       float64   `json:"wind"`
	Code       int       `json:"code"`
}

func (Outlook) Kind() Kind { return KindOutlook }

// AlertList carries active CAP alerts for a point.
type AlertList struct {
	Alerts []Alert `json:"alerts"`
}

// Alert is one active hazard product.
type Alert struct {
	Event    string    `json:"event"`
	Severity string    `json:"severity"`
	Headline string    `json:"headline,omitempty"`
	Area     string    `json:"area,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
}

func (AlertList) Kind() Kind { return KindAlerts }

// ConvectiveProfile summarizes instability and shear at a point.
type ConvectiveProfile struct {
	CAPE        float64 `json:"cape"`
	CIN         float64 `json:"cin"`
	Shear       float64 `json:"shear"`
	LiftedIndex float64 `json:"lifted_index"`
}

func (ConvectiveProfile) Kind() Kind { return KindProfile }

// Discussion is the extracted text of the responsible office's Area Forecast
// Discussion.
type Discussion struct {
	Office  string `json:"office"`
	Excerpt string `json:"excerpt"`
}

func (Discussion) Kind() Kind { return KindDiscussion }

// RegionSamples aggregates observations and alert counts across a sample of
// cities in one region, for the worldview overview.
type RegionSamples struct {
	Region  string         `json:"region"`
	Samples []RegionSample `json:"samples"`
	Alerts  []RegionAlert  `json:"alerts"`
}

// RegionSample is one sampled city.
type RegionSample struct {
	City       string  `json:"city"`
	Temp       float64 `json:"temp"`
	Wind       float64 `json:"wind"`
	Gust       float64 `json:"gust"`
	PrecipProb float64 `json:"precip_prob"`
}

// RegionAlert is an aggregated alert event with affected areas.
type RegionAlert struct {
	Event string   `json:"event"`
	Count int      `json:"count"`
	Areas []string `json:"areas,omitempty"`
}

func (RegionSamples) Kind() Kind { return KindRegion }
