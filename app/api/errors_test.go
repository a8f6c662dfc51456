package api

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"docufi/types"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errorApp(err error) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/boom", func(*fiber.Ctx) error { return err })
	return app
}

func TestErrorHandlerStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", types.NewValidationError(map[string]string{"topic": "required"}), fiber.StatusUnprocessableEntity},
		{"not found", types.NotFoundError{Resource: "document", ID: "x"}, fiber.StatusNotFound},
		{"state conflict", types.StateConflictError{Resource: "document", ID: "x", State: "parsing", Op: "start research"}, fiber.StatusConflict},
		{"generation", types.GenerationError{Err: fmt.Errorf("model unavailable")}, fiber.StatusBadGateway},
		{"retrieval", types.RetrievalError{Err: fmt.Errorf("index unreachable")}, fiber.StatusBadGateway},
		{"timeout", fmt.Errorf("calling parser: %w", context.DeadlineExceeded), fiber.StatusGatewayTimeout},
		{"unknown", fmt.Errorf("boom"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := errorApp(tc.err).Test(httptest.NewRequest("GET", "/boom", nil))
			require.NoError(t, err)
			assert.Equal(t, tc.code, resp.StatusCode)
		})
	}
}
