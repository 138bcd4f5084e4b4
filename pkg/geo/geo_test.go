package geo

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		p1   Point
		p2   Point
		want float64
	}{
		{
			name: "Same Point",
			p1:   Point{Lat: 0, Lng: 0},
			p2:   Point{Lat: 0, Lng: 0},
			want: 0,
		},
		{
			name: "London to Paris",
			p1:   Point{Lat: 51.5074, Lng: -0.1278},
			p2:   Point{Lat: 48.8566, Lng: 2.3522},
			want: 344000, // Approx 344km
		},
		{
			name: "Equator 1 degree",
			p1:   Point{Lat: 0, Lng: 0},
			p2:   Point{Lat: 0, Lng: 1},
			want: 111319, // Approx 111km
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.p1, tt.p2)
			// Allow 1% margin of error due to float precision/earth radius var
			margin := tt.want * 0.01
			if math.Abs(got-tt.want) > margin && tt.want != 0 {
				t.Errorf("Distance() = %v, want %v (+/- %v)", got, tt.want, margin)
			}
		})
	}
}

func TestDestinationPoint(t *testing.T) {
	start := Point{Lat: 43.65, Lng: -79.38}
	dest := DestinationPoint(start, 500, 90)

	// Round trip: distance back to start should be ~500m.
	got := Distance(start, dest)
	if math.Abs(got-500) > 1 {
		t.Errorf("round-trip distance = %v, want ~500", got)
	}
}

func TestRouteDistance(t *testing.T) {
	a := Point{Lat: 43.65, Lng: -79.38}
	b := DestinationPoint(a, 300, 0)
	c := DestinationPoint(b, 400, 90)

	if got := RouteDistance(nil); got != 0 {
		t.Errorf("empty route distance = %v", got)
	}
	if got := RouteDistance([]Point{a}); got != 0 {
		t.Errorf("single-point route distance = %v", got)
	}

	got := RouteDistance([]Point{a, b, c})
	if math.Abs(got-700) > 2 {
		t.Errorf("route distance = %v, want ~700", got)
	}
}

func TestBoundAround(t *testing.T) {
	center := Point{Lat: 43.65, Lng: -79.38}
	bound := BoundAround(center, 500)

	inside := DestinationPoint(center, 400, 45)
	if !bound.Contains([2]float64{inside.Lng, inside.Lat}) {
		t.Error("point 400m away should be inside the bound")
	}

	outside := DestinationPoint(center, 5000, 45)
	if bound.Contains([2]float64{outside.Lng, outside.Lat}) {
		t.Error("point 5km away should be outside the bound")
	}
}

func TestValidLatLng(t *testing.T) {
	tests := []struct {
		lat, lng float64
		want     bool
	}{
		{43.65, -79.38, true},
		{90, 180, true},
		{-90, -180, true},
		{91, 0, false},
		{0, 181, false},
		{-90.001, 0, false},
	}
	for _, tt := range tests {
		if got := ValidLatLng(tt.lat, tt.lng); got != tt.want {
			t.Errorf("ValidLatLng(%v, %v) = %v, want %v", tt.lat, tt.lng, got, tt.want)
		}
	}
}
