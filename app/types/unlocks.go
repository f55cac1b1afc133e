package types

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

const RazorpaySignatureHeader = "X-Razorpay-Signature"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError flattens the first validator failure into a client message.
func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}

	first := errs[0]
	switch first.Tag() {
	case "required":
		return fmt.Errorf("%s is required", first.Field())
	case "max":
		return fmt.Errorf("%s must be at most %s characters", first.Field(), first.Param())
	default:
		return fmt.Errorf("%s is invalid", first.Field())
	}
}

// CreateOrderRequest carries no amount: price is a server-side policy.
type CreateOrderRequest struct {
	UserId     string `json:"user_id" validate:"required,max=64"`
	ResourceId string `json:"resource_id" validate:"required,max=64"`
}

func (r *CreateOrderRequest) GetUserId() string {
	if r == nil {
		return ""
	}
	return r.UserId
}

func (r *CreateOrderRequest) GetResourceId() string {
	if r == nil {
		return ""
	}
	return r.ResourceId
}

func NewCreateOrderRequestFromContext(ctx echo.Context) (*CreateOrderRequest, error) {
	var body CreateOrderRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.UserId = strings.TrimSpace(body.UserId)
	body.ResourceId = strings.TrimSpace(body.ResourceId)

	return &body, nil
}

func (r *CreateOrderRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return validationError(err)
	}
	return nil
}

type HandleWebhookRequest struct {
	RequestId string
	Provider  string
	Signature string
	Payload   []byte
}

func (r *HandleWebhookRequest) GetRequestId() string {
	if r == nil {
		return ""
	}
	return r.RequestId
}

func (r *HandleWebhookRequest) GetProvider() string {
	if r == nil {
		return ""
	}
	return r.Provider
}

func (r *HandleWebhookRequest) GetSignature() string {
	if r == nil {
		return ""
	}
	return r.Signature
}

func (r *HandleWebhookRequest) GetPayload() []byte {
	if r == nil {
		return nil
	}
	return r.Payload
}

// NewHandleWebhookRequestFromContext keeps the body byte-exact; the
// signature covers the raw bytes.
func NewHandleWebhookRequestFromContext(ctx echo.Context) (*HandleWebhookRequest, error) {
	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	requestID := strings.TrimSpace(ctx.Response().Header().Get(echo.HeaderXRequestID))
	if requestID == "" {
		requestID = strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
	}

	return &HandleWebhookRequest{
		RequestId: requestID,
		Provider:  strings.ToLower(strings.TrimSpace(ctx.Param("provider"))),
		Signature: strings.TrimSpace(ctx.Request().Header.Get(RazorpaySignatureHeader)),
		Payload:   rawBody,
	}, nil
}

func (r *HandleWebhookRequest) Validate() error {
	if strings.TrimSpace(r.GetProvider()) == "" {
		return errors.New("provider is required")
	}
	if len(r.GetPayload()) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

type GetEntitlementRequest struct {
	UserId string `json:"user_id" validate:"required,max=64"`
}

func (r *GetEntitlementRequest) GetUserId() string {
	if r == nil {
		return ""
	}
	return r.UserId
}

func NewGetEntitlementRequestFromContext(ctx echo.Context) (*GetEntitlementRequest, error) {
	return &GetEntitlementRequest{UserId: strings.TrimSpace(ctx.Param("user_id"))}, nil
}

func (r *GetEntitlementRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return validationError(err)
	}
	return nil
}
