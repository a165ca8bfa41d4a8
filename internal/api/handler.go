// Package api exposes the forecasting pipeline, demographic breakdowns,
// and the signup/login flow over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/vaxsight/vaxsight"
	"github.com/vaxsight/vaxsight/arima"
	"github.com/vaxsight/vaxsight/backtest"
	"github.com/vaxsight/vaxsight/forecast"
	"github.com/vaxsight/vaxsight/internal/auth"
	"github.com/vaxsight/vaxsight/internal/store"
	"github.com/vaxsight/vaxsight/timedataset"
)

// DataStore is the slice of the record store the handlers read.
type DataStore interface {
	VaccinationRows(ctx context.Context, f store.Filter) ([]timedataset.Row, error)
	Breakdown(ctx context.Context, attribute string, f store.Filter) ([]store.BreakdownRow, error)
}

// Authenticator handles the signup/login flow.
type Authenticator interface {
	Signup(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) error
}

// Defaults are the model settings used when a request leaves them out.
type Defaults struct {
	Horizon int
	HeldOut int
	Order   arima.Order
}

type Handler struct {
	log      zerolog.Logger
	data     DataStore
	auth     Authenticator
	defaults Defaults
}

func NewHandler(log zerolog.Logger, data DataStore, authSvc Authenticator, defaults Defaults) *Handler {
	return &Handler{
		log:      log,
		data:     data,
		auth:     authSvc,
		defaults: defaults,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/signup", h.Signup)
	g.POST("/login", h.Login)
	g.GET("/breakdown", h.Breakdown)
	g.POST("/forecast", h.Forecast)
	g.POST("/backtest", h.Backtest)
	g.POST("/compare", h.Compare)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// pipelineError maps pipeline failures onto HTTP responses. Failures
// surface as errors; the response never substitutes zeros or stale
// numbers for a failed computation.
func (h *Handler) pipelineError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, timedataset.ErrNoRecords):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error(), Code: "no_data"})
	case errors.Is(err, timedataset.ErrInvalidRecord):
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "invalid_record"})
	case errors.Is(err, arima.ErrInsufficientData):
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "insufficient_data"})
	case errors.Is(err, arima.ErrModelFit):
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "model_fit_failed"})
	case errors.Is(err, arima.ErrInvalidOrder),
		errors.Is(err, forecast.ErrInvalidHorizon),
		errors.Is(err, backtest.ErrInvalidHorizon):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_request"})
	default:
		h.log.Error().Err(err).Msg("pipeline failure")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
}

func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_request"})
}

type FilterSpec struct {
	State       string `json:"state"`
	City        string `json:"city"`
	VaccineType string `json:"vaccine_type"`
}

func (f FilterSpec) toStore() store.Filter {
	return store.Filter{
		State:       f.State,
		City:        f.City,
		VaccineType: f.VaccineType,
	}
}

type OrderSpec struct {
	P int `json:"p" validate:"min=0"`
	D int `json:"d" validate:"min=0"`
	Q int `json:"q" validate:"min=0"`
}

func (h *Handler) orderOrDefault(spec *OrderSpec) arima.Order {
	if spec == nil {
		return h.defaults.Order
	}
	return arima.Order{P: spec.P, D: spec.D, Q: spec.Q}
}

type ForecastRequest struct {
	Horizon int        `json:"horizon" validate:"min=0,max=50"`
	Order   *OrderSpec `json:"order"`
	Filter  FilterSpec `json:"filter"`
}

func (h *Handler) Forecast(c echo.Context) error {
	var req ForecastRequest
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}
	horizon := req.Horizon
	if horizon == 0 {
		horizon = h.defaults.Horizon
	}

	series, err := h.filteredSeries(c.Request().Context(), req.Filter)
	if err != nil {
		return h.pipelineError(c, err)
	}

	res, err := forecast.Forecast(series, horizon, h.orderOrDefault(req.Order))
	if err != nil {
		return h.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type BacktestRequest struct {
	HeldOut int        `json:"held_out" validate:"min=0,max=50"`
	Order   *OrderSpec `json:"order"`
	Filter  FilterSpec `json:"filter"`
}

func (h *Handler) Backtest(c echo.Context) error {
	var req BacktestRequest
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}
	heldOut := req.HeldOut
	if heldOut == 0 {
		heldOut = h.defaults.HeldOut
	}

	series, err := h.filteredSeries(c.Request().Context(), req.Filter)
	if err != nil {
		return h.pipelineError(c, err)
	}

	res, err := backtest.Run(series, heldOut, h.orderOrDefault(req.Order))
	if err != nil {
		return h.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type CompareRequest struct {
	ExternalTotal        float64    `json:"external_total" validate:"min=0"`
	ExternalVaccinated   *float64   `json:"external_vaccinated" validate:"omitempty,min=0"`
	ExternalUnvaccinated *float64   `json:"external_unvaccinated" validate:"omitempty,min=0"`
	Filter               FilterSpec `json:"filter"`
}

type CompareResponse struct {
	Comparison            vaxsight.Comparison  `json:"comparison"`
	SyntheticUnvaccinated vaxsight.Proportion  `json:"synthetic_unvaccinated_pct"`
	ExternalUnvaccinated  *vaxsight.Proportion `json:"external_unvaccinated_pct,omitempty"`
}

func (h *Handler) Compare(c echo.Context) error {
	var req CompareRequest
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}

	rows, err := h.data.VaccinationRows(c.Request().Context(), req.Filter.toStore())
	if err != nil {
		h.log.Error().Err(err).Msg("store query failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
	vaccinated, err := timedataset.Build(rows, timedataset.VaccinatedOnly)
	if err != nil {
		return h.pipelineError(c, err)
	}
	// A dataset with no unvaccinated records is a real 0% share, not an
	// empty-series failure.
	unvaccinatedTotal := 0
	unvaccinated, err := timedataset.Build(rows, timedataset.UnvaccinatedOnly)
	switch {
	case err == nil:
		unvaccinatedTotal = unvaccinated.Total()
	case errors.Is(err, timedataset.ErrNoRecords):
	default:
		return h.pipelineError(c, err)
	}

	cmp, err := vaxsight.Compare(vaccinated.Total(), req.ExternalTotal)
	if err != nil {
		return badRequest(c, err)
	}
	syntheticShare, err := vaxsight.UnvaccinatedShare(float64(vaccinated.Total()), float64(unvaccinatedTotal))
	if err != nil {
		return badRequest(c, err)
	}

	resp := CompareResponse{
		Comparison:            cmp,
		SyntheticUnvaccinated: syntheticShare,
	}
	if req.ExternalVaccinated != nil && req.ExternalUnvaccinated != nil {
		share, err := vaxsight.UnvaccinatedShare(*req.ExternalVaccinated, *req.ExternalUnvaccinated)
		if err != nil {
			return badRequest(c, err)
		}
		resp.ExternalUnvaccinated = &share
	}
	return c.JSON(http.StatusOK, resp)
}

// filteredSeries pulls the filtered rows and aggregates the vaccinated
// annual series for the model stages.
func (h *Handler) filteredSeries(ctx context.Context, f FilterSpec) (timedataset.AnnualSeries, error) {
	rows, err := h.data.VaccinationRows(ctx, f.toStore())
	if err != nil {
		return nil, err
	}
	return timedataset.Build(rows, timedataset.VaccinatedOnly)
}

type BreakdownResponse struct {
	Attribute string               `json:"attribute"`
	Rows      []store.BreakdownRow `json:"rows"`
}

func (h *Handler) Breakdown(c echo.Context) error {
	attribute := c.QueryParam("attribute")
	if attribute == "" {
		attribute = "age_group"
	}
	f := store.Filter{
		State:       c.QueryParam("state"),
		City:        c.QueryParam("city"),
		VaccineType: c.QueryParam("vaccine_type"),
	}

	rows, err := h.data.Breakdown(c.Request().Context(), attribute, f)
	if err != nil {
		if errors.Is(err, store.ErrUnknownAttribute) {
			return badRequest(c, err)
		}
		h.log.Error().Err(err).Msg("breakdown query failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
	return c.JSON(http.StatusOK, BreakdownResponse{Attribute: attribute, Rows: rows})
}

type CredentialsRequest struct {
	Username string `json:"username" validate:"required,min=3,max=100"`
	Password string `json:"password" validate:"required,min=8,max=200"`
}

func (h *Handler) Signup(c echo.Context) error {
	var req CredentialsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}

	if err := h.auth.Signup(c.Request().Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Code: "user_exists"})
		}
		h.log.Error().Err(err).Msg("signup failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
	return c.JSON(http.StatusCreated, map[string]string{"status": "created"})
}

func (h *Handler) Login(c echo.Context) error {
	var req CredentialsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return badRequest(c, err)
	}

	if err := h.auth.Login(c.Request().Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error(), Code: "invalid_credentials"})
		}
		h.log.Error().Err(err).Msg("login failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
