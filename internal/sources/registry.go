package sources

import (
	"context"
	"fmt"
)

var usCities = []regionCity{
	{"New York", 40.71, -74.01},
	{"Chicago", 41.88, -87.63},
	{"Dallas", 32.78, -96.80},
	{"Denver", 39.74, -104.99},
	{"Seattle", 47.61, -122.33},
	{"Miami", 25.76, -80.19},
}

var euCities = []regionCity{
	{"London", 51.51, -0.13},
	{"Paris", 48.86, 2.35},
	{"Berlin", 52.52, 13.40},
	{"Madrid", 40.42, -3.70},
	{"Rome", 41.90, 12.50},
	{"Warsaw", 52.23, 21.01},
}

// Registry hands out adapters by id. In offline mode every id maps to its
// synthetic stand-in so the rest of the pipeline is unchanged.
type Registry struct {
	opts    Options
	offline bool
}

func NewRegistry(opts Options, offline bool) *Registry {
	return &Registry{opts: opts.withDefaults(), offline: offline}
}

func (r *Registry) Offline() bool { return r.offline }

// Adapter returns the adapter registered under id, or false for unknown ids.
func (r *Registry) Adapter(id string) (Adapter, bool) {
	if r.offline {
		return r.synthetic(id)
	}
	switch id {
	case SourceGeocode:
		return newGeocodeAdapter(r.opts), true
	case SourceObs:
		return newObsAdapter(r.opts), true
	case SourceOutlook:
		return newOutlookAdapter(r.opts), true
	case SourceAlerts:
		return newAlertsAdapter(r.opts), true
	case SourceProfile:
		return newProfileAdapter(r.opts), true
	case SourceDiscussion:
		return newDiscussionAdapter(r.opts), true
	case SourceUSObs:
		return newRegionObsAdapter(SourceUSObs, "us", usCities, r.opts), true
	case SourceEUObs:
		return newRegionObsAdapter(SourceEUObs, "eu", euCities, r.opts), true
	case SourceUSAlerts:
		return newUSAlertsAdapter(r.opts), true
	case SourceEUAlerts:
		return newEUAlertsAdapter(r.opts), true
	}
	return nil, false
}

func (r *Registry) synthetic(id string) (Adapter, bool) {
	switch id {
	case SourceGeocode:
		return newSynthAdapter(id, KindPointContext), true
	case SourceObs:
		return newSynthAdapter(id, KindObservations), true
	case SourceOutlook:
		return newSynthAdapter(id, KindOutlook), true
	case SourceAlerts:
		return newSynthAdapter(id, KindAlerts), true
	case SourceProfile:
		return newSynthAdapter(id, KindProfile), true
	case SourceDiscussion:
		return newSynthAdapter(id, KindDiscussion), true
	case SourceUSObs:
		return newSynthRegionAdapter(SourceUSObs, "us", usCities), true
	case SourceEUObs:
		return newSynthRegionAdapter(SourceEUObs, "eu", euCities), true
	case SourceUSAlerts:
		return newSynthRegionAdapter(SourceUSAlerts, "us", nil), true
	case SourceEUAlerts:
		return newSynthRegionAdapter(SourceEUAlerts, "eu", nil), true
	}
	return nil, false
}

// Select resolves ids in order, skipping unknown ones. The returned order is
// the caller's priority order and is preserved through assembly.
func (r *Registry) Select(ids ...string) []Adapter {
	out := make([]Adapter, 0, len(ids))
	for _, id := range ids {
		if a, ok := r.Adapter(id); ok {
			out = append(out, a)
		}
	}
	return out
}

// Worldview returns the regional sampling set.
func (r *Registry) Worldview() []Adapter {
	return r.Select(SourceUSObs, SourceEUObs, SourceUSAlerts, SourceEUAlerts)
}

// Resolve turns a place string into coordinates ahead of assembly so the
// point-dependent adapters can run concurrently.
func (r *Registry) Resolve(ctx context.Context, place, units string) (PointContext, error) {
	adapter, ok := r.Adapter(SourceGeocode)
	if !ok {
		return PointContext{}, fmt.Errorf("geocode adapter unavailable")
	}
	ctx, cancel := context.WithTimeout(ctx, adapter.Timeout())
	defer cancel()
	payload, err := adapter.Fetch(ctx, Request{Source: SourceGeocode, Place: place, Units: units})
	if err != nil {
		return PointContext{}, err
	}
	pc, ok := payload.(PointContext)
	if !ok {
		return PointContext{}, fmt.Errorf("unexpected payload %T from geocode", payload)
	}
	return pc, nil
}
