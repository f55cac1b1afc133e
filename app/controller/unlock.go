package controller

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-unlocks/app/factory"
	"github.com/vibast-solutions/ms-go-unlocks/app/mapper"
	"github.com/vibast-solutions/ms-go-unlocks/app/service"
	"github.com/vibast-solutions/ms-go-unlocks/app/types"
)

type UnlockController struct {
	unlockService *service.UnlockService
	logger        logrus.FieldLogger
}

func NewUnlockController(unlockService *service.UnlockService) *UnlockController {
	return &UnlockController{
		unlockService: unlockService,
		logger:        factory.NewModuleLogger("unlocks-controller"),
	}
}

func (c *UnlockController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *UnlockController) CreateOrder(ctx echo.Context) error {
	req, err := types.NewCreateOrderRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.unlockService.CreateOrder(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			c.reportInternal(ctx, err, "Create order failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, mapper.OrderResultToResponse(result))
}

// HandleWebhook answers with bare status text; the provider only looks at
// the code. 4xx is final for the provider, 5xx makes it redeliver.
func (c *UnlockController) HandleWebhook(ctx echo.Context) error {
	req, err := types.NewHandleWebhookRequestFromContext(ctx)
	if err != nil {
		return ctx.String(http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
	}
	if err := req.Validate(); err != nil {
		return ctx.String(http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
	}

	l := factory.LoggerWithContext(c.logger, ctx)
	outcome, err := c.unlockService.HandleWebhook(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCallbackRejected):
			l.Warn("Webhook authentication failed")
			return ctx.String(http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
		case errors.Is(err, service.ErrInvalidPayload), errors.Is(err, service.ErrProviderUnsupported), errors.Is(err, service.ErrInvalidRequest):
			l.WithError(err).Warn("Webhook rejected")
			return ctx.String(http.StatusBadRequest, http.StatusText(http.StatusBadRequest))
		default:
			c.reportInternal(ctx, err, "Handle webhook failed")
			return ctx.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
	}

	l.WithField("outcome", outcome.String()).Debug("Webhook handled")
	return ctx.String(http.StatusOK, http.StatusText(http.StatusOK))
}

func (c *UnlockController) GetEntitlement(ctx echo.Context) error {
	req, err := types.NewGetEntitlementRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	status, err := c.unlockService.GetEntitlement(ctx.Request().Context(), req.GetUserId())
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		}
		c.reportInternal(ctx, err, "Get entitlement failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.EntitlementStatusToResponse(status))
}

func (c *UnlockController) reportInternal(ctx echo.Context, err error, message string) {
	factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(message)
	sentry.CaptureException(err)
}

func (c *UnlockController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
