package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/base/delivery"
	"github.com/tokenmart/goapi/base/validator"
	"github.com/tokenmart/goapi/domain"
)

type authHandler struct {
	auth       domain.AuthUsecase
	signingMsg string
}

func New(e *echo.Echo, auth domain.AuthUsecase, signingMsg string) {
	handler := &authHandler{
		auth:       auth,
		signingMsg: signingMsg,
	}
	g := e.Group("/auth")
	g.POST("/sign", handler.sign)
	g.GET("/signingMsg", handler.getSigningMsg)
}

func (h *authHandler) sign(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	type params struct {
		Address   domain.Address `json:"address" validate:"required"`
		Signature string         `json:"signature" validate:"required"`
	}

	p := &params{}

	if err := c.Bind(p); err != nil {
		ctx.WithField("err", err).Error("bind failed")
		return c.JSON(http.StatusUnprocessableEntity, err)
	}
	if err := c.Validate(p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if !validator.IsValidAddress(string(p.Address)) {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, domain.ErrInvalidAddress)
	}

	tkn, err := h.auth.SignToken(ctx, p.Address, p.Signature)
	if err != nil {
		ctx.WithField("err", err).Error("auth.SignToken failed")
		if err == domain.ErrInvalidSignature {
			return delivery.MakeJsonResp(c, http.StatusUnauthorized, err)
		}
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusCreated, tkn)
}

// getSigningMsg returns the template the wallet must sign; %s is replaced
// with the lowercased account address
func (h *authHandler) getSigningMsg(c echo.Context) error {
	res := struct {
		Msg string `json:"template"`
	}{
		Msg: h.signingMsg,
	}
	return delivery.MakeJsonResp(c, http.StatusOK, res)
}
