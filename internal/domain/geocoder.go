package domain

import "context"

// Address is a reverse-geocoded street address for a coordinate.
type Address struct {
	Formatted string
	Street    string
}

// Geocoder resolves coordinates into addresses, used to fill a message's
// denormalized address list when a crawler emitted bare geometry.
// Implementations live in adapters; a nil Geocoder disables enrichment.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, c LatLng) (Address, error)
}
