package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	msgNoCredential        = "No token provided"
	msgUnauthorized        = "Unauthorized"
	msgRoleNotPermitted    = "This user's role is not permitted to perform this action"
	msgCallerNotPermitted  = "This user is not permitted to perform this action"
	msgAdminSignupDisabled = "Admin registration is not permitted"
	msgEmailExists         = "Email already registered"
	msgInvalidLogin        = "Invalid email or password"
	msgInternal            = "internal server error"
)

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func errorBody(message string) gin.H {
	return gin.H{"error": message}
}

func validationBody(fields ...fieldError) gin.H {
	return gin.H{"errors": fields}
}

var tagNameOnce sync.Once

// registerValidationTagNames makes validation errors report JSON field names.
func registerValidationTagNames() {
	tagNameOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		engine.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})
	})
}

var fieldLabels = map[string]string{
	"email":          "Email",
	"password":       "Password",
	"role":           "Role",
	"userId":         "User ID",
	"psychologistId": "Psychologist ID",
	"dateTime":       "Date time",
	"firstName":      "First name",
	"lastName":       "Last name",
	"address":        "Address",
	"channel":        "Channel",
	"data":           "Data",
}

func fieldLabel(field string) string {
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	if field == "" {
		return "Value"
	}
	return strings.ToUpper(field[:1]) + field[1:]
}

// bindingErrors turns a bind failure into field level messages.
func bindingErrors(err error) []fieldError {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make([]fieldError, 0, len(validationErrs))
		for _, fieldErr := range validationErrs {
			fields = append(fields, fieldError{
				Field:   fieldErr.Field(),
				Message: validationMessage(fieldErr),
			})
		}
		return fields
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return []fieldError{{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("%s has the wrong type", fieldLabel(typeErr.Field)),
		}}
	}

	var timeErr *time.ParseError
	if errors.As(err, &timeErr) {
		return []fieldError{{Field: "dateTime", Message: "Date time must be an RFC 3339 timestamp"}}
	}

	return []fieldError{{Field: "body", Message: "Request body must be valid JSON"}}
}

func validationMessage(fieldErr validator.FieldError) string {
	label := fieldLabel(fieldErr.Field())
	switch fieldErr.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Invalid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fieldErr.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fieldErr.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", label, strings.ReplaceAll(fieldErr.Param(), " ", ", "))
	default:
		return label + " is invalid"
	}
}
