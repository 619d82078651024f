// Package response defines the JSON envelope every API endpoint returns.
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Envelope is the body of every JSON response. Data is set on success and
// Error on failure; Message is always present.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

// OK writes a 200 envelope.
func OK(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// Created writes a 201 envelope.
func Created(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusCreated, Envelope{Success: true, Message: message, Data: data})
}

// Fail writes an error envelope with the given status.
func Fail(c echo.Context, status int, message string, detail interface{}) error {
	if detail == nil {
		detail = http.StatusText(status)
	}
	return c.JSON(status, Envelope{Success: false, Message: message, Error: detail})
}
