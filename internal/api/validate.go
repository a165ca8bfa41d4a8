package api

import (
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New()

// bindAndValidate binds the request body, fills defaults, and runs
// struct validation.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	if err := defaults.Set(req); err != nil {
		return err
	}
	return validate.StructCtx(c.Request().Context(), req)
}
