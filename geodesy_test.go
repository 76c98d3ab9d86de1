package seisloc

import (
	"math"
	"testing"
)

func TestDistAzimuthRoundTrip(t *testing.T) {
	cases := []struct {
		lat, lon, delta, azim float64
	}{
		{0., 0., 30., 45.},
		{35., 139., 60., 300.},
		{-12.5, 177.3, 95.4, 10.},
		{71., -20., 140., 181.5},
		{-60., 10., 5., 90.},
		{48.2, -123.4, 179., 222.2},
	}
	for _, c := range cases {
		lat2, lon2 := PointAtDeltaAzimuth(c.lat, c.lon, c.delta, c.azim)
		delta, esaz, _ := DistAzimuth(c.lat, c.lon, lat2, lon2)
		if math.Abs(delta-c.delta) > 1e-8 {
			t.Errorf("delta: got %.12f want %.12f", delta, c.delta)
		}
		if math.Abs(esaz-c.azim) > 1e-6 {
			t.Errorf("azimuth: got %.9f want %.9f", esaz, c.azim)
		}
	}
}

func TestDistAzimuthIdenticalPoints(t *testing.T) {
	delta, esaz, seaz := DistAzimuth(10., 20., 10., 20.)
	if delta != 0. || esaz != 0. || seaz != 0. {
		t.Errorf("identical points: got %f %f %f", delta, esaz, seaz)
	}
}

func TestDistAzimuthAntipodalRange(t *testing.T) {
	delta, _, _ := DistAzimuth(0., 0., 0., 180.)
	if math.Abs(delta-180.) > 1e-8 {
		t.Errorf("antipodal delta: got %f", delta)
	}
}

func TestGeocentricColatitude(t *testing.T) {
	// equator: colatitude is pi/2 exactly, flattening notwithstanding
	if math.Abs(GeocentricColatitude(0.)-math.Pi/2.) > 1e-12 {
		t.Errorf("equator colatitude: got %f", GeocentricColatitude(0.))
	}
	// poles
	if math.Abs(GeocentricColatitude(90.)) > 1e-9 {
		t.Errorf("north pole colatitude: got %f", GeocentricColatitude(90.))
	}
	// geocentric latitude is smaller than geographic in the northern
	// hemisphere, so the colatitude is larger
	if GeocentricColatitude(45.) <= math.Pi/4. {
		t.Errorf("flattening sign: got %f", GeocentricColatitude(45.))
	}
}

func TestStationSeparation(t *testing.T) {
	s1 := Station{Key: "AAA", Lat: 0., Lon: 0.}
	s2 := Station{Key: "BBB", Lat: 0., Lon: 1.}
	d := StationSeparation(&s1, &s2)
	if math.Abs(d-DEG2KM) > 1e-6 {
		t.Errorf("one degree on the equator: got %f want %f", d, DEG2KM)
	}
}
