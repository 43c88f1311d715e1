package echoapi

import "github.com/labstack/echo/v4"

// Response is the uniform JSON envelope every endpoint answers with.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

func okResponse(ctx echo.Context, code int, message string, data interface{}) error {
	return ctx.JSON(code, Response{Success: true, Message: message, Data: data})
}
