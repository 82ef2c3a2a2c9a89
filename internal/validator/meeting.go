package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"meeting-booking-api/internal/booking"
	"meeting-booking-api/internal/logger"
	"meeting-booking-api/internal/model"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// MeetingRequest is the inbound booking payload shared by the HTTP and gRPC
// transports.
type MeetingRequest struct {
	UserIDs     []int64 `json:"user_ids" validate:"required,min=1,unique,dive,gt=0"`
	StartTime   string  `json:"start_time" validate:"required,datetime=2006-01-02 15:04:05"`
	EndTime     string  `json:"end_time" validate:"required,datetime=2006-01-02 15:04:05"`
	MeetingName string  `json:"meeting_name" validate:"required,max=255"`
}

// ToBookingRequest parses the timestamps as UTC. Call it after Validate.
func (r *MeetingRequest) ToBookingRequest() (booking.Request, error) {
	start, err := time.Parse(model.TimeLayout, r.StartTime)
	if err != nil {
		return booking.Request{}, fmt.Errorf("parse start_time: %w", err)
	}
	end, err := time.Parse(model.TimeLayout, r.EndTime)
	if err != nil {
		return booking.Request{}, fmt.Errorf("parse end_time: %w", err)
	}
	return booking.Request{
		UserIDs:     r.UserIDs,
		StartTime:   start,
		EndTime:     end,
		MeetingName: r.MeetingName,
	}, nil
}

type MeetingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewMeetingValidator(log *logger.Logger) *MeetingValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report fields by their wire names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	log.Debug("Meeting validator initialized")

	return &MeetingValidator{
		validate: v,
		logger:   log,
	}
}

func (v *MeetingValidator) Validate(req *MeetingRequest) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	// both parse: the datetime tag already checked them
	start, _ := time.Parse(model.TimeLayout, req.StartTime)
	end, _ := time.Parse(model.TimeLayout, req.EndTime)
	if !end.After(start) {
		return ValidationErrors{
			ValidationError{
				Field:   "end_time",
				Message: "end_time must be after start_time",
			},
		}
	}

	return nil
}

func (v *MeetingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must contain at least %s item(s)", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "unique":
			message = fmt.Sprintf("%s must not contain duplicates", err.Field())
		case "gt":
			message = fmt.Sprintf("%s must be a positive user id", err.Field())
		case "datetime":
			message = fmt.Sprintf("%s must use the format YYYY-MM-DD HH:MM:SS", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
