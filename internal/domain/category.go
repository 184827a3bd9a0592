package domain

// Category is one entry of the fixed taxonomy used to tag messages.
type Category string

// The full taxonomy. CategoryUncategorized is a sentinel applied when no
// other category matched, so every message is countable under exactly one of
// "has at least one category" or "uncategorized".
const (
	CategoryAirQuality           Category = "air-quality"
	CategoryArt                  Category = "art"
	CategoryBicycles             Category = "bicycles"
	CategoryConstructionRepairs  Category = "construction-and-repairs"
	CategoryCulture              Category = "culture"
	CategoryElectricity          Category = "electricity"
	CategoryHealth               Category = "health"
	CategoryHeating              Category = "heating"
	CategoryParking              Category = "parking"
	CategoryPublicTransport      Category = "public-transport"
	CategoryRoadBlock            Category = "road-block"
	CategorySports               Category = "sports"
	CategoryTraffic              Category = "traffic"
	CategoryVehicles             Category = "vehicles"
	CategoryWaste                Category = "waste"
	CategoryWater                Category = "water"
	CategoryWeather              Category = "weather"
	CategoryUncategorized        Category = "uncategorized"
)

var allCategories = map[Category]struct{}{
	CategoryAirQuality:          {},
	CategoryArt:                 {},
	CategoryBicycles:            {},
	CategoryConstructionRepairs: {},
	CategoryCulture:             {},
	CategoryElectricity:         {},
	CategoryHealth:              {},
	CategoryHeating:             {},
	CategoryParking:             {},
	CategoryPublicTransport:     {},
	CategoryRoadBlock:           {},
	CategorySports:              {},
	CategoryTraffic:             {},
	CategoryVehicles:            {},
	CategoryWaste:               {},
	CategoryWater:               {},
	CategoryWeather:             {},
	CategoryUncategorized:       {},
}

// IsValidCategory reports whether s is a known taxonomy entry,
// including the uncategorized sentinel.
func IsValidCategory(s string) bool {
	_, ok := allCategories[Category(s)]
	return ok
}
