// README: Vehicle classes shared by pricing and matching.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// VehicleClass governs both the pricing rate and matching eligibility.
type VehicleClass string

const (
	VehicleSmallVan        VehicleClass = "small van"
	VehicleSemiTruck       VehicleClass = "semi truck"
	VehicleLargeTruck      VehicleClass = "large truck"
	VehicleExtraLargeTruck VehicleClass = "extra large truck"
)

var VehicleClasses = []VehicleClass{
	VehicleSmallVan,
	VehicleSemiTruck,
	VehicleLargeTruck,
	VehicleExtraLargeTruck,
}

var ErrUnknownVehicleClass = errors.New("unknown vehicle class")

// ParseVehicleClass accepts "small van", "small-van", "small_van" and any casing.
func ParseVehicleClass(s string) (VehicleClass, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", " ", "_", " ").Replace(norm)
	norm = strings.Join(strings.Fields(norm), " ")
	v := VehicleClass(norm)
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownVehicleClass, s)
	}
	return v, nil
}

func (v VehicleClass) Valid() bool {
	for _, c := range VehicleClasses {
		if c == v {
			return true
		}
	}
	return false
}

// Slug is the key-safe form, e.g. "extra_large_truck".
func (v VehicleClass) Slug() string {
	return strings.ReplaceAll(string(v), " ", "_")
}
