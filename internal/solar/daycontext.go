package solar

import "time"

// maxDayEntries bounds the per-day memo. At typical ray rates one day of
// volumes stays well below it; the map is simply cleared when it fills up.
const maxDayEntries = 1 << 17

// instant is an exact map key for a time across the full supported year range.
type instant struct {
	sec  int64
	nsec int32
}

// DayContext memoizes sun positions for one site and one UTC day. The only
// term shared across the day is Delta T, evaluated once at noon. The
// geocentric solution is not shared between instants: positions are cached by
// exact instant, which serves the gates of one ray and repeated ray times.
//
// A DayContext is not safe for concurrent use. Give each worker its own.
type DayContext struct {
	engine *Engine
	day    time.Time
	deltaT float64
	cache  map[instant]Position

	hits   uint64
	misses uint64
}

// NewDayContext returns a memo for the UTC day containing day.
func (e *Engine) NewDayContext(day time.Time) *DayContext {
	d := &DayContext{engine: e}
	d.Reset(day)
	return d
}

// Reset rebinds the context to a new day and drops cached positions.
func (d *DayContext) Reset(day time.Time) {
	day = day.UTC()
	d.day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	d.deltaT = d.engine.deltaT(d.day.Add(12 * time.Hour))
	d.cache = make(map[instant]Position, 1024)
	d.hits, d.misses = 0, 0
}

// Day returns the UTC midnight the context is bound to.
func (d *DayContext) Day() time.Time {
	return d.day
}

// DeltaT returns the TT-UT1 offset used for the whole day.
func (d *DayContext) DeltaT() float64 {
	return d.deltaT
}

// Contains reports whether t falls on the bound day.
func (d *DayContext) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(d.day) && t.Before(d.day.Add(24*time.Hour))
}

// Position returns the apparent sun position at t. A cache miss runs the
// full SPA chain with the day's Delta T; instants on other days are still
// computed correctly but with the bound day's Delta T.
func (d *DayContext) Position(t time.Time) (Position, error) {
	key := instant{t.Unix(), int32(t.Nanosecond())}
	if p, ok := d.cache[key]; ok {
		d.hits++
		return p, nil
	}
	if err := ValidateInstant(t); err != nil {
		return Position{}, err
	}

	d.misses++
	g := ComputeGeocentric(JulianDay(t, d.engine.DUT1), d.deltaT)
	p := d.engine.finish(t, g)

	if len(d.cache) >= maxDayEntries {
		clear(d.cache)
	}
	d.cache[key] = p
	return p, nil
}

// CacheStats returns memo hit and miss counts since the last Reset.
func (d *DayContext) CacheStats() (hits, misses uint64) {
	return d.hits, d.misses
}
