package api

import (
	"errors"
	"fmt"
	"time"

	"docufi/types"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler maps domain errors onto HTTP status codes: bad input is
// 422, unknown ids are 404, illegal state transitions are 409,
// collaborator failures are 502 and deadline expiries are 504.
// Everything else is a 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if apiError, ok := err.(Error); ok {
		return c.Status(apiError.Code).JSON(apiError)
	}

	var valErr types.ValidationError
	if errors.As(err, &valErr) {
		return c.Status(valErr.Status).JSON(valErr)
	}
	var notFound types.NotFoundError
	if errors.As(err, &notFound) {
		return c.Status(fiber.StatusNotFound).JSON(NewError(fiber.StatusNotFound, notFound.Error()))
	}
	var conflict types.StateConflictError
	if errors.As(err, &conflict) {
		return c.Status(fiber.StatusConflict).JSON(NewError(fiber.StatusConflict, conflict.Error()))
	}
	var genErr types.GenerationError
	if errors.As(err, &genErr) {
		return c.Status(fiber.StatusBadGateway).JSON(NewError(fiber.StatusBadGateway, genErr.Error()))
	}
	var retErr types.RetrievalError
	if errors.As(err, &retErr) {
		return c.Status(fiber.StatusBadGateway).JSON(NewError(fiber.StatusBadGateway, retErr.Error()))
	}
	if types.IsTimeout(err) {
		return c.Status(fiber.StatusGatewayTimeout).JSON(NewError(fiber.StatusGatewayTimeout, err.Error()))
	}

	apiError := NewError(fiber.StatusInternalServerError, err.Error())
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		apiError = NewError(fiberErr.Code, fiberErr.Message)
	}

	curTime := time.Now()
	fmt.Printf("%s Request failed with code %d and message: %s\n", &curTime, apiError.Code, apiError.Message)
	return c.Status(apiError.Code).JSON(apiError)
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrInvalidID() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid id given",
	}
}
