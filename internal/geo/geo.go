package geo

import "math"

type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Lerp returns b exactly at t == 1 so finished transitions land on their target.
func Lerp(a, b, t float64) float64 {
	if t == 1 {
		return b
	}
	return a + (b-a)*t
}

// LerpLatLng interpolates lat and lng independently.
func LerpLatLng(a, b LatLng, t float64) LatLng {
	return LatLng{Lat: Lerp(a.Lat, b.Lat, t), Lng: Lerp(a.Lng, b.Lng, t)}
}

// DegreeDistance is the Euclidean distance in lat/lng degree space. Good enough
// at city scale, where it only drives animation timing.
func DegreeDistance(a, b LatLng) float64 {
	return math.Hypot(b.Lat-a.Lat, b.Lng-a.Lng)
}

// Clamp01 saturates v into [0,1]. NaN maps to 0 so callers can index with it.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Wrap01 returns v mod 1 in [0,1).
func Wrap01(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	r := math.Mod(v, 1)
	if r < 0 {
		r += 1
	}
	if r >= 1 {
		r = 0
	}
	return r
}

// NormalizeBearing maps any angle in degrees into [0,360).
func NormalizeBearing(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// AngleDelta returns the signed shortest rotation from `from` to `to`, in [-180,180].
func AngleDelta(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d > 180 {
		d -= 360
	}
	if d < -180 {
		d += 360
	}
	return d
}

// HaversineMeters returns the great-circle distance in meters.
func HaversineMeters(a, b LatLng) float64 {
	const R = 6371000.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return R * c
}
