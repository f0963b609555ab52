package registry

import "github.com/i474232898/air-quality-forecast/internal/airquality"

// DefaultLocations is the built-in seed list, used when no seed file is configured.
var DefaultLocations = []airquality.Location{
	{City: "Mumbai", Country: "India", Lat: 19.0760, Lon: 72.8777, Active: true},
	{City: "Delhi", Country: "India", Lat: 28.6139, Lon: 77.2090, Active: true},
	{City: "Beijing", Country: "China", Lat: 39.9042, Lon: 116.4074, Active: true},
	{City: "London", Country: "UK", Lat: 51.5074, Lon: -0.1278, Active: true},
	{City: "New York", Country: "USA", Lat: 40.7128, Lon: -74.0060, Active: true},
	{City: "Los Angeles", Country: "USA", Lat: 34.0522, Lon: -118.2437, Active: true},
	{City: "Tokyo", Country: "Japan", Lat: 35.6762, Lon: 139.6503, Active: true},
	{City: "Paris", Country: "France", Lat: 48.8566, Lon: 2.3522, Active: true},
}

// popularKeys is the curated order returned by Popular.
var popularKeys = func() []string {
	keys := make([]string, len(DefaultLocations))
	for i, loc := range DefaultLocations {
		keys[i] = loc.Key()
	}
	return keys
}()
