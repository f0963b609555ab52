package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
	"github.com/i474232898/air-quality-forecast/internal/predictor"
	"github.com/i474232898/air-quality-forecast/internal/registry"
)

var validate = validator.New()

// LocationService is the registry surface the API exposes.
type LocationService interface {
	Get(city, country string) (airquality.Location, error)
	Lookup(name string) (airquality.Location, error)
	Find(query string, limit int) ([]airquality.Location, error)
	Nearby(lat, lon, radiusKm float64) ([]registry.NearbyLocation, error)
	Popular() []airquality.Location
	AddByName(ctx context.Context, city, country string) (airquality.Location, error)
}

// CurrentService serves fresh readings.
type CurrentService interface {
	GetCurrent(ctx context.Context, loc airquality.Location) (airquality.Reading, error)
}

// PredictService forecasts AQI.
type PredictService interface {
	Predict(ctx context.Context, loc airquality.Location, horizons []int) (predictor.Result, error)
}

// HistoryReader reads stored readings.
type HistoryReader interface {
	Latest(ctx context.Context, key string) (airquality.Reading, error)
	Range(ctx context.Context, key string, from, to time.Time) ([]airquality.Reading, error)
}

// Services bundles the handlers' dependencies.
type Services struct {
	Locations LocationService
	Current   CurrentService
	Predictor PredictService
	History   HistoryReader
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, svc Services) {
	h := &handlers{svc: svc, now: func() time.Time { return time.Now().UTC() }}

	aqi := app.Group("/api/aqi")
	aqi.Get("/current/:city", h.current)
	aqi.Get("/predict/:city", h.predict)
	aqi.Get("/historical/:city", h.historical)
	aqi.Get("/compare", h.compare)

	locs := app.Group("/api/locations")
	locs.Get("/search", h.search)
	locs.Get("/nearby", h.nearby)
	locs.Get("/popular", h.popular)
	locs.Post("/add", h.add)
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// toHTTPError maps domain errors onto status codes. Unknown errors keep a
// generic message.
func toHTTPError(err error, fallback string) error {
	switch {
	case errors.Is(err, airquality.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, airquality.ErrNotFound), errors.Is(err, airquality.ErrUpstreamRejected):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, airquality.ErrDuplicateLocation):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, airquality.ErrInsufficientHistory), errors.Is(err, airquality.ErrInsufficientData):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, airquality.ErrModelUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, airquality.ErrCollectionFailed):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, fallback)
}

type handlers struct {
	svc Services
	now func() time.Time
}

// resolve finds the registered location for the :city param and the
// optional country query.
func (h *handlers) resolve(c *fiber.Ctx) (airquality.Location, error) {
	city := strings.TrimSpace(c.Params("city"))
	if city == "" {
		return airquality.Location{}, fmt.Errorf("%w: city is required", airquality.ErrValidation)
	}
	if country := strings.TrimSpace(c.Query("country")); country != "" {
		return h.svc.Locations.Get(city, country)
	}
	return h.svc.Locations.Lookup(city)
}

type currentResponse struct {
	City       string                `json:"city"`
	Country    string                `json:"country"`
	AQI        *float64              `json:"aqi"`
	Category   string                `json:"category"`
	Pollutants airquality.Pollutants `json:"pollutants"`
	Weather    airquality.Weather    `json:"weather"`
	Timestamp  time.Time             `json:"timestamp"`
}

func (h *handlers) current(c *fiber.Ctx) error {
	loc, err := h.resolve(c)
	if err != nil {
		return toHTTPError(err, "failed to resolve city")
	}

	r, err := h.svc.Current.GetCurrent(c.UserContext(), loc)
	if err != nil {
		return toHTTPError(err, "failed to fetch current AQI")
	}

	return c.JSON(currentResponse{
		City:       loc.City,
		Country:    loc.Country,
		AQI:        r.AQI,
		Category:   airquality.CategoryOf(r.AQI),
		Pollutants: r.Pollutants,
		Weather:    r.Weather,
		Timestamp:  r.Timestamp,
	})
}

func (h *handlers) predict(c *fiber.Ctx) error {
	loc, err := h.resolve(c)
	if err != nil {
		return toHTTPError(err, "failed to resolve city")
	}

	hours, err := parseHours(c.Query("hours", "24,48,72"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	res, err := h.svc.Predictor.Predict(c.UserContext(), loc, hours)
	if err != nil {
		return toHTTPError(err, "prediction failed")
	}
	return c.JSON(res)
}

func parseHours(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid hours value %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

// historicalQuery holds query parameters for the history endpoint.
type historicalQuery struct {
	Days int `query:"days" validate:"gte=1,lte=90"`
}

type historicalPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	AQI         *float64  `json:"aqi"`
	PM25        *float64  `json:"pm25"`
	PM10        *float64  `json:"pm10"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
}

func (h *handlers) historical(c *fiber.Ctx) error {
	loc, err := h.resolve(c)
	if err != nil {
		return toHTTPError(err, "failed to resolve city")
	}

	q := historicalQuery{Days: 7}
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	to := h.now()
	from := to.Add(-time.Duration(q.Days) * 24 * time.Hour)
	readings, err := h.svc.History.Range(c.UserContext(), loc.Key(), from, to)
	if err != nil {
		return toHTTPError(err, "failed to fetch historical data")
	}
	if len(readings) == 0 {
		return fiber.NewError(fiber.StatusNotFound, "no historical data found")
	}

	data := make([]historicalPoint, 0, len(readings))
	for _, r := range readings {
		data = append(data, historicalPoint{
			Timestamp:   r.Timestamp,
			AQI:         r.AQI,
			PM25:        r.Pollutants.PM25,
			PM10:        r.Pollutants.PM10,
			Temperature: r.Weather.Temperature,
			Humidity:    r.Weather.Humidity,
		})
	}

	return c.JSON(fiber.Map{
		"city":    loc.City,
		"country": loc.Country,
		"data":    data,
		"count":   len(data),
	})
}

type compareEntry struct {
	City      string    `json:"city"`
	Country   string    `json:"country"`
	AQI       *float64  `json:"aqi"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *handlers) compare(c *fiber.Ctx) error {
	var names []string
	for _, n := range strings.Split(c.Query("cities"), ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if err := validate.Var(names, "min=1,max=10"); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "cities must list between 1 and 10 names")
	}

	results := make([]compareEntry, 0, len(names))
	for _, name := range names {
		loc, err := h.svc.Locations.Lookup(name)
		if err != nil {
			continue
		}
		r, err := h.svc.History.Latest(c.UserContext(), loc.Key())
		if errors.Is(err, airquality.ErrNotFound) {
			continue
		}
		if err != nil {
			return toHTTPError(err, "failed to compare cities")
		}
		results = append(results, compareEntry{
			City:      loc.City,
			Country:   loc.Country,
			AQI:       r.AQI,
			Category:  airquality.CategoryOf(r.AQI),
			Timestamp: r.Timestamp,
		})
	}

	return c.JSON(fiber.Map{
		"cities": results,
		"count":  len(results),
	})
}

type locationView struct {
	City        string   `json:"city"`
	Country     string   `json:"country"`
	Lat         float64  `json:"lat"`
	Lon         float64  `json:"lon"`
	DisplayName string   `json:"display_name"`
	DistanceKm  *float64 `json:"distance_km,omitempty"`
}

func viewOf(loc airquality.Location) locationView {
	return locationView{
		City:        loc.City,
		Country:     loc.Country,
		Lat:         loc.Lat,
		Lon:         loc.Lon,
		DisplayName: loc.Name(),
	}
}

func viewsOf(locs []airquality.Location) []locationView {
	out := make([]locationView, 0, len(locs))
	for _, l := range locs {
		out = append(out, viewOf(l))
	}
	return out
}

// searchQuery holds query parameters for location search.
type searchQuery struct {
	Q     string `query:"q"`
	Limit int    `query:"limit"`
}

func (h *handlers) search(c *fiber.Ctx) error {
	q := searchQuery{Limit: 10}
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	locs, err := h.svc.Locations.Find(q.Q, q.Limit)
	if err != nil {
		return toHTTPError(err, "search failed")
	}
	results := viewsOf(locs)
	return c.JSON(fiber.Map{
		"results": results,
		"count":   len(results),
	})
}

// nearbyQuery holds query parameters for the nearby endpoint.
type nearbyQuery struct {
	Lat      *float64 `query:"lat" validate:"required"`
	Lon      *float64 `query:"lon" validate:"required"`
	RadiusKm float64  `query:"radius_km"`
}

func (h *handlers) nearby(c *fiber.Ctx) error {
	q := nearbyQuery{RadiusKm: 50}
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "lat and lon query parameters are required")
	}

	found, err := h.svc.Locations.Nearby(*q.Lat, *q.Lon, q.RadiusKm)
	if err != nil {
		return toHTTPError(err, "failed to find locations")
	}

	out := make([]locationView, 0, len(found))
	for _, n := range found {
		v := viewOf(n.Location)
		d := n.DistanceKm
		v.DistanceKm = &d
		out = append(out, v)
	}
	return c.JSON(fiber.Map{
		"locations": out,
		"count":     len(out),
	})
}

func (h *handlers) popular(c *fiber.Ctx) error {
	locs := viewsOf(h.svc.Locations.Popular())
	return c.JSON(fiber.Map{
		"locations": locs,
		"count":     len(locs),
	})
}

// addQuery holds query parameters for registering a location.
type addQuery struct {
	City    string `query:"city" validate:"required"`
	Country string `query:"country" validate:"required"`
}

func (h *handlers) add(c *fiber.Ctx) error {
	var q addQuery
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	q.City, q.Country = strings.TrimSpace(q.City), strings.TrimSpace(q.Country)
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "city and country query parameters are required")
	}

	loc, err := h.svc.Locations.AddByName(c.UserContext(), q.City, q.Country)
	if errors.Is(err, airquality.ErrDuplicateLocation) {
		return c.JSON(fiber.Map{
			"message":  "Location already exists",
			"location": viewOf(loc),
		})
	}
	if err != nil {
		return toHTTPError(err, "failed to add location")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Location added successfully",
		"location": viewOf(loc),
	})
}
