package types

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

// ResearchParams starts a deep research task for a document.
type ResearchParams struct {
	Topic       string `json:"topic" validate:"required"`
	CustomQuery string `json:"custom_query"`
}

// ChatParams is one conversational turn. SessionID is optional: a turn
// without one creates a session on the fly.
type ChatParams struct {
	Message    string     `json:"message" validate:"required"`
	SessionID  *uuid.UUID `json:"session_id"`
	DocumentID *uuid.UUID `json:"document_id"`
}

// SessionParams creates a chat session with optional generation
// overrides.
type SessionParams struct {
	DocumentID   *uuid.UUID `json:"document_id"`
	SessionName  string     `json:"session_name"`
	Temperature  *float32   `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens    *int       `json:"max_tokens" validate:"omitempty,gt=0"`
	SystemPrompt string     `json:"system_prompt"`
}

func (params *ResearchParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *ChatParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *SessionParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(v any) map[string]string {
	validate := validator.New()
	if err := validate.Struct(v); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: http.StatusUnprocessableEntity,
		Errors: errors,
	}
}

// ValidationError reports bad input: file type, file size, missing
// fields. No state is created when it is returned.
type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}
