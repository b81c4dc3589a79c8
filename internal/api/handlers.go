package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/mealsense/mealsense_core/internal/catalogue"
	"github.com/mealsense/mealsense_core/internal/demand"
	"github.com/mealsense/mealsense_core/internal/geo"
	"github.com/mealsense/mealsense_core/internal/geocode"
	"github.com/mealsense/mealsense_core/internal/middleware"
	"github.com/mealsense/mealsense_core/internal/models"
	"github.com/mealsense/mealsense_core/internal/supplier"
	"github.com/mealsense/mealsense_core/internal/trace"
)

const geocodeHint = `Try a more specific place name, e.g. "Thanjavur, Tamil Nadu".`

// Tracer runs a food trace
type Tracer interface {
	Trace(ctx context.Context, food, originQuery, destQuery, apiKey string) (*models.TraceResult, error)
}

// DemandReader reads the demand log
type DemandReader interface {
	ReadAll() ([]models.DemandLogEntry, error)
}

// SupplierDashboard serves the supplier demand overview
type SupplierDashboard interface {
	Summary(ctx context.Context) (models.DemandSummary, error)
	Entries() ([]models.DemandLogEntry, error)
}

// HealthCheck probes one optional dependency
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the handlers need
type Deps struct {
	Catalogue     *catalogue.Catalogue
	Tracer        Tracer
	Demand        DemandReader
	Dashboard     SupplierDashboard
	RoutingAPIKey string
	Delivery      models.GeoPoint
	Checks        map[string]HealthCheck
	Metrics       http.Handler // nil disables /metrics
	Logger        *slog.Logger
}

// Handler serves the MealSense HTTP API
type Handler struct {
	deps     Deps
	validate *validator.Validate
}

// NewHandler creates a Handler
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handler{deps: deps, validate: validator.New()}
}

// Register mounts every route on r. traceLimiter, if not nil, guards POST /v1/trace.
func (h *Handler) Register(r fiber.Router, traceLimiter fiber.Handler) {
	r.Get("/health", h.Health)
	if h.deps.Metrics != nil {
		r.Get("/metrics", adaptor.HTTPHandler(h.deps.Metrics))
	}

	v1 := r.Group("/v1")
	v1.Get("/foods", h.FoodsList)
	v1.Get("/foods/match", h.FoodMatch)
	v1.Get("/foods/:name", h.FoodQuickView)

	traceHandlers := []fiber.Handler{h.Trace}
	if traceLimiter != nil {
		traceHandlers = append([]fiber.Handler{traceLimiter}, traceHandlers...)
	}
	v1.Post("/trace", traceHandlers...)

	v1.Get("/demand", h.DemandList)
	v1.Get("/supplier/plan", h.SupplierPlan)
	v1.Post("/supplier/plan/image", h.SupplierPlanImage)
	v1.Get("/supplier/dashboard", h.SupplierDashboard)
	v1.Get("/supplier/report.xlsx", h.SupplierReport)
	v1.Get("/mentor", h.Mentor)
}

// Health handles the /health endpoint
func (h *Handler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	healthy := true
	checks := fiber.Map{}

	logStatus := "ok"
	if _, err := h.deps.Demand.ReadAll(); err != nil {
		logStatus = err.Error()
		healthy = false
	}
	checks["demand_log"] = logStatus

	for name, check := range h.deps.Checks {
		status := "ok"
		if err := check(ctx); err != nil {
			status = err.Error()
			healthy = false
		}
		checks[name] = status
	}

	status := "healthy"
	httpStatus := fiber.StatusOK
	if !healthy {
		status = "unhealthy"
		httpStatus = fiber.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"catalogue": h.deps.Catalogue.Len(),
		"checks":    checks,
	})
}

// FoodsListResponse lists the catalogue
type FoodsListResponse struct {
	Foods []string `json:"foods"`
	Total int      `json:"total"`
}

// FoodsList handles GET /v1/foods
func (h *Handler) FoodsList(c *fiber.Ctx) error {
	names := h.deps.Catalogue.AllNames()
	return c.JSON(FoodsListResponse{Foods: names, Total: len(names)})
}

// FoodView is the consumer quick view of one food
type FoodView struct {
	Food                 models.FoodRecord `json:"food"`
	SustainabilityScore  *float64          `json:"sustainability_score,omitempty"`
	DeliveryPoint        string            `json:"delivery_point"`
	DistanceToDeliveryKm *float64          `json:"distance_to_delivery_km,omitempty"`
}

// FoodQuickView handles GET /v1/foods/:name. It does not touch the demand log.
func (h *Handler) FoodQuickView(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return badRequest(c, "invalid food name")
	}

	rec, err := h.deps.Catalogue.Get(name)
	if err != nil {
		return h.unknownFood(c, name)
	}
	c.Locals(middleware.LocalFood, rec.Food)

	view := FoodView{
		Food:                rec,
		SustainabilityScore: supplier.SustainabilityScore(rec),
		DeliveryPoint:       h.deps.Delivery.DisplayName,
	}
	if origin, ok := rec.Origin(); ok {
		d := geo.Round(geo.GeodesicKm(origin, h.deps.Delivery), 2)
		view.DistanceToDeliveryKm = &d
	}

	return c.JSON(view)
}

// FoodMatch handles GET /v1/foods/match?q=
func (h *Handler) FoodMatch(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		return badRequest(c, "missing required parameter: q")
	}

	match, confidence := h.deps.Catalogue.FuzzyMatch(q)
	return c.JSON(fiber.Map{
		"query":      q,
		"match":      match,
		"confidence": confidence,
	})
}

// TraceRequest is the body of POST /v1/trace
type TraceRequest struct {
	Food        string `json:"food" validate:"required"`
	Origin      string `json:"origin" validate:"required"`
	Destination string `json:"destination" validate:"required"`
}

// Trace handles POST /v1/trace
func (h *Handler) Trace(c *fiber.Ctx) error {
	var req TraceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, "food, origin and destination are required")
	}
	c.Locals(middleware.LocalFood, req.Food)

	ctx, cancel := context.WithTimeout(c.UserContext(), 45*time.Second)
	defer cancel()

	result, err := h.deps.Tracer.Trace(ctx, req.Food, req.Origin, req.Destination, h.deps.RoutingAPIKey)
	if err != nil {
		return h.traceError(c, req.Food, err)
	}

	c.Locals(middleware.LocalTraceID, result.ID)
	return c.JSON(result)
}

func (h *Handler) traceError(c *fiber.Ctx, food string, err error) error {
	var f *trace.Failure
	if !errors.As(err, &f) {
		return err
	}

	switch f.Kind {
	case trace.InvalidInput:
		return badRequest(c, f.Err.Error())
	case trace.UnknownFood:
		return h.unknownFood(c, food)
	case trace.GeocodeFailed:
		resp := fiber.Map{
			"error":   string(trace.GeocodeFailed),
			"which":   f.Which,
			"message": "could not locate the " + f.Which,
			"hint":    geocodeHint,
		}
		var gf *geocode.Failure
		if errors.As(err, &gf) {
			resp["kind"] = string(gf.Kind)
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(resp)
	default:
		return err
	}
}

// DemandList handles GET /v1/demand
func (h *Handler) DemandList(c *fiber.Ctx) error {
	entries, err := h.deps.Demand.ReadAll()
	if err != nil {
		return h.demandUnavailable(c, err)
	}
	return c.JSON(fiber.Map{
		"entries": entries,
		"total":   len(entries),
	})
}

func (h *Handler) unknownFood(c *fiber.Ctx, name string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":   string(trace.UnknownFood),
		"message": "food not found in catalogue: " + name,
		"foods":   h.deps.Catalogue.AllNames(),
	})
}

func (h *Handler) demandUnavailable(c *fiber.Ctx, err error) error {
	code := "demand_log_unreadable"
	if errors.Is(err, demand.ErrLogCorrupt) {
		code = "demand_log_corrupt"
	}
	h.deps.Logger.Error("demand log unavailable", "err", err)

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error":   code,
		"message": "the demand log cannot be read right now",
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   string(trace.InvalidInput),
		"message": message,
	})
}

// ErrorHandler turns errors returned from handlers into JSON without internals
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}

		if code >= 500 {
			logger.Error("request failed", "path", c.Path(), "err", err)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}
}
