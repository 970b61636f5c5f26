package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-charges/app/factory"
	"github.com/vibast-solutions/ms-go-charges/app/mapper"
	"github.com/vibast-solutions/ms-go-charges/app/service"
	"github.com/vibast-solutions/ms-go-charges/app/types"
)

type ChargeController struct {
	chargeService *service.ChargeService
	logger        logrus.FieldLogger
}

func NewChargeController(chargeService *service.ChargeService) *ChargeController {
	return &ChargeController{
		chargeService: chargeService,
		logger:        factory.NewModuleLogger("charges-controller"),
	}
}

func (c *ChargeController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *ChargeController) CreateCharge(ctx echo.Context) error {
	req, err := types.NewChargeRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	// Identifier checks come first: a request without them is rejected before
	// any store access.
	if err := req.ValidateIdentifiers(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	reply, err := c.chargeService.Charge(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrKeyReuseMismatch):
			return c.writeError(ctx, http.StatusConflict, "Idempotency-Key reuse with different payload")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Create charge failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	// JSONBlob keeps replayed responses byte-identical to the stored body.
	return ctx.JSONBlob(reply.StatusCode, reply.Body)
}

func (c *ChargeController) GetPayment(ctx echo.Context) error {
	paymentID := ctx.Param("id")

	payment, err := c.chargeService.GetPayment(ctx.Request().Context(), paymentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, "invalid payment id")
		case errors.Is(err, service.ErrPaymentNotFound):
			return c.writeError(ctx, http.StatusNotFound, "payment not found")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get payment failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, mapper.PaymentToResponse(payment))
}

func (c *ChargeController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
