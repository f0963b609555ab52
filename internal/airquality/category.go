package airquality

// Category is one band of the fixed AQI table.
type Category struct {
	Name  string
	Min   float64
	Max   float64
	Level int
	Tips  []string
}

// Categories is the six-band AQI table, ordered from best to worst.
var Categories = []Category{
	{
		Name: "Good", Min: 0, Max: 50, Level: 0,
		Tips: []string{
			"Air quality is excellent. Perfect for outdoor activities!",
			"Enjoy your time outside with no restrictions.",
			"Great day for exercise and outdoor sports.",
		},
	},
	{
		Name: "Moderate", Min: 51, Max: 100, Level: 1,
		Tips: []string{
			"Air quality is acceptable for most people.",
			"Unusually sensitive individuals should consider limiting prolonged outdoor exertion.",
			"Good day for outdoor activities with minor precautions.",
		},
	},
	{
		Name: "Unhealthy for Sensitive Groups", Min: 101, Max: 150, Level: 2,
		Tips: []string{
			"Sensitive groups should reduce prolonged outdoor exertion.",
			"Children and adults with respiratory issues should take breaks during outdoor activities.",
			"Consider wearing a mask if you're in a sensitive group.",
		},
	},
	{
		Name: "Unhealthy", Min: 151, Max: 200, Level: 3,
		Tips: []string{
			"Everyone should reduce prolonged outdoor exertion.",
			"Wear a mask when going outside.",
			"Keep windows closed and use air purifiers indoors.",
			"Reschedule outdoor activities if possible.",
		},
	},
	{
		Name: "Very Unhealthy", Min: 201, Max: 300, Level: 4,
		Tips: []string{
			"Avoid all outdoor physical activities.",
			"Everyone should wear N95 masks outdoors.",
			"Keep windows and doors closed.",
			"Use HEPA air purifiers indoors.",
			"Sensitive groups should remain indoors.",
		},
	},
	{
		Name: "Hazardous", Min: 301, Max: 500, Level: 5,
		Tips: []string{
			"Health alert: Stay indoors and avoid all outdoor activities.",
			"Use N95 or higher-grade masks if you must go outside.",
			"Seal windows and doors. Use multiple air purifiers.",
			"Seek medical attention if you experience symptoms.",
			"Follow local emergency guidelines.",
		},
	},
}

// CategoryUnknown is reported for readings without an AQI.
const CategoryUnknown = "Unknown"

// CategoryFor maps an AQI value to its band. Fractional values between bands
// (e.g. 50.5) belong to the lower band; anything above 500 is Hazardous.
func CategoryFor(aqi float64) Category {
	for _, c := range Categories {
		if aqi <= c.Max {
			return c
		}
	}
	return Categories[len(Categories)-1]
}

// CategoryName is a shorthand for CategoryFor(aqi).Name.
func CategoryName(aqi float64) string {
	return CategoryFor(aqi).Name
}

// CategoryOf returns the category name for an optional AQI.
func CategoryOf(aqi *float64) string {
	if aqi == nil {
		return CategoryUnknown
	}
	return CategoryName(*aqi)
}

// HealthTips returns a copy of the tips for the band containing aqi.
func HealthTips(aqi float64) []string {
	tips := CategoryFor(aqi).Tips
	out := make([]string, len(tips))
	copy(out, tips)
	return out
}
