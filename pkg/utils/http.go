package utils

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

func GetRequestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

func GetIPAddress(c echo.Context) string {
	return c.Request().RemoteAddr
}

// FormInt reads an integer form value, returning def when the field is absent.
func FormInt(c echo.Context, name string, def int) (int, error) {
	raw := c.FormValue(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// FormFloat reads a float form value, returning def when the field is absent.
func FormFloat(c echo.Context, name string, def float64) (float64, error) {
	raw := c.FormValue(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}
