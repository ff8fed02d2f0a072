package sources

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const maxAlerts = 5

// alertsAdapter fetches active NWS alerts covering the point.
type alertsAdapter struct {
	baseAdapter
	opts Options
}

func newAlertsAdapter(opts Options) *alertsAdapter {
	return &alertsAdapter{baseAdapter{SourceAlerts, KindAlerts, opts.Timeout}, opts}
}

type nwsAlertFeed struct {
	Features []struct {
		Properties struct {
			Event    string `json:"event"`
			Severity string `json:"severity"`
			Headline string `json:"headline"`
			AreaDesc string `json:"areaDesc"`
			Expires  string `json:"expires"`
		} `json:"properties"`
	} `json:"features"`
}

func (a *alertsAdapter) Fetch(ctx context.Context, req Request) (Payload, error) {
	if !req.HasPoint {
		return nil, errNoPoint
	}
	u := fmt.Sprintf("%s/alerts/active?point=%.4f,%.4f", a.opts.NWSURL, req.Lat, req.Lon)
	var feed nwsAlertFeed
	if err := a.opts.Client.GetJSON(ctx, u, a.opts.headers(), &feed); err != nil {
		return nil, err
	}
	list := AlertList{}
	for _, f := range feed.Features {
		if len(list.Alerts) >= maxAlerts {
			break
		}
		expires, _ := time.Parse(time.RFC3339, f.Properties.Expires)
		list.Alerts = append(list.Alerts, Alert{
			Event:    f.Properties.Event,
			Severity: f.Properties.Severity,
			Headline: f.Properties.Headline,
			Area:     f.Properties.AreaDesc,
			Expires:  expires,
		})
	}
	return list, nil
}

// discussionAdapter resolves the forecast office for the point, then extracts
// the readable body of its latest area forecast discussion page.
type discussionAdapter struct {
	baseAdapter
	opts Options
}

func newDiscussionAdapter(opts Options) *discussionAdapter {
	return &discussionAdapter{baseAdapter{SourceDiscussion, KindDiscussion, opts.Timeout}, opts}
}

const discussionExcerptLimit = 1200

func (a *discussionAdapter) Fetch(ctx context.Context, req Request) (Payload, error) {
	if !req.HasPoint {
		return nil, errNoPoint
	}
	pointURL := fmt.Sprintf("%s/points/%.4f,%.4f", a.opts.NWSURL, req.Lat, req.Lon)
	var point struct {
		Properties struct {
			CWA string `json:"cwa"`
		} `json:"properties"`
	}
	if err := a.opts.Client.GetJSON(ctx, pointURL, a.opts.headers(), &point); err != nil {
		return nil, err
	}
	office := strings.ToUpper(strings.TrimSpace(point.Properties.CWA))
	if office == "" {
		return nil, fmt.Errorf("no forecast office for point")
	}
	pageURL := fmt.Sprintf("%s/product.php?site=NWS&issuedby=%s&product=AFD&format=CI&version=1&glossary=0", a.opts.ForecastURL, office)
	html, err := a.opts.Client.GetBody(ctx, pageURL, map[string]string{"User-Agent": a.opts.UserAgent})
	if err != nil {
		return nil, err
	}
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	article, err := readability.FromReader(strings.NewReader(string(html)), parsed)
	if err != nil {
		return nil, fmt.Errorf("extract discussion: %w", err)
	}
	excerpt := condenseDiscussion(article.TextContent)
	if excerpt == "" {
		return nil, fmt.Errorf("empty discussion body")
	}
	return Discussion{Office: office, Excerpt: excerpt}, nil
}

// condenseDiscussion collapses whitespace and truncates at a word boundary.
func condenseDiscussion(text string) string {
	fields := strings.Fields(text)
	joined := strings.Join(fields, " ")
	if len(joined) <= discussionExcerptLimit {
		return joined
	}
	cut := joined[:discussionExcerptLimit]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}

// usAlertsAdapter aggregates severe and extreme NWS alerts nationwide,
// grouped by event for the worldview roll-up.
type usAlertsAdapter struct {
	baseAdapter
	opts Options
}

func newUSAlertsAdapter(opts Options) *usAlertsAdapter {
	return &usAlertsAdapter{baseAdapter{SourceUSAlerts, KindRegion, opts.Timeout}, opts}
}

func (a *usAlertsAdapter) Fetch(ctx context.Context, req Request) (Payload, error) {
	u := fmt.Sprintf("%s/alerts/active?severity=Severe,Extreme&limit=200", a.opts.NWSURL)
	var feed nwsAlertFeed
	if err := a.opts.Client.GetJSON(ctx, u, a.opts.headers(), &feed); err != nil {
		return nil, err
	}
	byEvent := map[string]*RegionAlert{}
	for _, f := range feed.Features {
		event := f.Properties.Event
		if event == "" {
			continue
		}
		ra, ok := byEvent[event]
		if !ok {
			ra = &RegionAlert{Event: event}
			byEvent[event] = ra
		}
		ra.Count++
		for _, area := range splitAreas(f.Properties.AreaDesc) {
			ra.Areas = appendArea(ra.Areas, area)
		}
	}
	return RegionSamples{Region: "us", Alerts: sortRegionAlerts(byEvent)}, nil
}

// euAlertsAdapter polls the MeteoAlarm country feeds and rolls warnings up by
// awareness type. Each country is best effort, one failing feed does not sink
// the rest.
type euAlertsAdapter struct {
	baseAdapter
	opts      Options
	countries []string
}

func newEUAlertsAdapter(opts Options) *euAlertsAdapter {
	countries := []string{"united-kingdom", "netherlands", "germany", "france"}
	return &euAlertsAdapter{baseAdapter{SourceEUAlerts, KindRegion, opts.Timeout}, opts, countries}
}

type meteoAlarmFeed struct {
	Warnings []struct {
		Alert struct {
			Info []struct {
				Event    string `json:"event"`
				Severity string `json:"severity"`
				Area     []struct {
					AreaDesc string `json:"areaDesc"`
				} `json:"area"`
			} `json:"info"`
		} `json:"alert"`
	} `json:"warnings"`
}

func (a *euAlertsAdapter) Fetch(ctx context.Context, req Request) (Payload, error) {
	byEvent := map[string]*RegionAlert{}
	fetched := 0
	for _, country := range a.countries {
		u := fmt.Sprintf("%s/api/v1/warnings/feeds-%s", a.opts.MeteoAlarmURL, country)
		var feed meteoAlarmFeed
		if err := a.opts.Client.GetJSON(ctx, u, a.opts.headers(), &feed); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		fetched++
		label := countryLabel(country)
		for _, w := range feed.Warnings {
			for _, info := range w.Alert.Info {
				event := info.Event
				if event == "" {
					continue
				}
				ra, ok := byEvent[event]
				if !ok {
					ra = &RegionAlert{Event: event}
					byEvent[event] = ra
				}
				ra.Count++
				ra.Areas = appendArea(ra.Areas, label)
			}
		}
	}
	if fetched == 0 {
		return nil, fmt.Errorf("all meteoalarm feeds unavailable")
	}
	return RegionSamples{Region: "eu", Alerts: sortRegionAlerts(byEvent)}, nil
}

func countryLabel(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func splitAreas(desc string) []string {
	parts := strings.Split(desc, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

const maxAreasPerEvent = 6

func appendArea(areas []string, area string) []string {
	for _, a := range areas {
		if a == area {
			return areas
		}
	}
	if len(areas) >= maxAreasPerEvent {
		return areas
	}
	return append(areas, area)
}

func sortRegionAlerts(byEvent map[string]*RegionAlert) []RegionAlert {
	out := make([]RegionAlert, 0, len(byEvent))
	for _, ra := range byEvent {
		out = append(out, *ra)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Event < out[j].Event
	})
	return out
}
