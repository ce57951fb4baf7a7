package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/base/delivery"
	"github.com/tokenmart/goapi/domain"
	"github.com/tokenmart/goapi/domain/platform"
)

type handler struct {
	platform platform.UseCase
}

// New registers the platform settings routes. Mutations are owner gated.
func New(e *echo.Echo, uc platform.UseCase, authMiddleware echo.MiddlewareFunc, isAdmin echo.MiddlewareFunc) {
	h := &handler{uc}

	g := e.Group("/platform")

	g.GET("/settings", h.getSettings)
	g.PUT("/feeBps", h.setFeeBps, authMiddleware, isAdmin)
	g.PUT("/feeRecipient", h.setFeeRecipient, authMiddleware, isAdmin)
}

func (h *handler) getSettings(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	type params struct {
		ChainId domain.ChainId `query:"chainId"`
	}

	p := params{ChainId: 1}
	if err := c.Bind(&p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	settings, err := h.platform.Get(ctx, p.ChainId)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, settings)
}

func (h *handler) setFeeBps(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	type payload struct {
		ChainId domain.ChainId `json:"chainId" validate:"required"`
		FeeBps  *int64         `json:"feeBps" validate:"required"`
	}

	p := payload{}
	if err := c.Bind(&p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(&p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	actor := c.Get("address").(domain.Address)
	if err := h.platform.SetFeeBps(ctx, p.ChainId, *p.FeeBps, actor); err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, "ok")
}

func (h *handler) setFeeRecipient(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	type payload struct {
		ChainId      domain.ChainId `json:"chainId" validate:"required"`
		FeeRecipient domain.Address `json:"feeRecipient" validate:"required"`
	}

	p := payload{}
	if err := c.Bind(&p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(&p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	actor := c.Get("address").(domain.Address)
	if err := h.platform.SetFeeRecipient(ctx, p.ChainId, p.FeeRecipient, actor); err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, "ok")
}
