package accounts

import "strings"

// ncrCities is the serviceable area. Hardcoded for now, could be fetched
// from an API/DB later.
var ncrCities = []string{
	"Caloocan", "Las Piñas", "Makati", "Malabon", "Mandaluyong", "Manila",
	"Marikina", "Muntinlupa", "Navotas", "Parañaque", "Pasay", "Pasig",
	"Pateros", "Quezon City", "San Juan", "Taguig", "Valenzuela",
}

// ServiceableCities returns the selectable city list in display order.
func ServiceableCities() []string {
	out := make([]string, len(ncrCities))
	copy(out, ncrCities)
	return out
}

// IsServiceableCity reports whether the city is inside the service area.
// Matching is case-insensitive.
func IsServiceableCity(city string) bool {
	city = strings.TrimSpace(city)
	for _, c := range ncrCities {
		if strings.EqualFold(c, city) {
			return true
		}
	}
	return false
}
