package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/base/delivery"
	"github.com/tokenmart/goapi/base/metrics"
	"github.com/tokenmart/goapi/domain"
	"github.com/tokenmart/goapi/domain/listing"
)

var met metrics.Service

type handler struct {
	listing listing.UseCase
}

func New(e *echo.Echo, uc listing.UseCase, authMiddleware echo.MiddlewareFunc) {
	met = metrics.New("listing")

	h := &handler{uc}

	g := e.Group("/listings")

	g.GET("", h.getAll)
	g.GET("/active", h.getAllActive)
	g.GET("/:id", h.get)
	g.GET("/:id/activities", h.getActivities)
	g.POST("", h.create, authMiddleware)
	g.PATCH("/:id/price", h.updatePrice, authMiddleware)
	g.PATCH("/:id/closingTime", h.updateClosingTime, authMiddleware)
	g.POST("/:id/cancel", h.cancel, authMiddleware)
	g.POST("/:id/buy", h.buy, authMiddleware)
}

func parseListingId(c echo.Context) (domain.ListingId, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, domain.ErrBadParamInput
	}
	return domain.ListingId(id), nil
}

func caller(c echo.Context) domain.Address {
	return c.Get("address").(domain.Address)
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	type payload struct {
		ChainId       domain.ChainId `json:"chainId" validate:"required"`
		AssetContract domain.Address `json:"assetContract" validate:"required"`
		TokenId       domain.TokenId `json:"tokenId" validate:"required"`
		Price         string         `json:"price" validate:"required"`
		// DurationSec is the listing lifetime in seconds
		DurationSec int64 `json:"durationSec" validate:"required"`
	}

	p := payload{}
	if err := c.Bind(&p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(&p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	id, err := h.listing.Create(ctx, listing.CreateReq{
		ChainId:       p.ChainId,
		AssetContract: p.AssetContract,
		TokenId:       p.TokenId,
		Price:         p.Price,
		Duration:      time.Duration(p.DurationSec) * time.Second,
	}, caller(c))
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}

	type response struct {
		Id domain.ListingId `json:"id"`
	}
	return delivery.MakeJsonResp(c, http.StatusCreated, response{Id: id})
}

func (h *handler) get(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	id, err := parseListingId(c)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	item, err := h.listing.Get(ctx, id)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, withStatus(item))
}

func (h *handler) getAll(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	type params struct {
		Offset int32 `query:"offset"`
		Limit  int32 `query:"limit"`
	}

	p := params{}
	if err := c.Bind(&p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	res, count, err := h.listing.GetAll(ctx, p.Offset, p.Limit)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}

	type response struct {
		Items []listingWithStatus `json:"items"`
		Count int                 `json:"count"`
	}
	return delivery.MakeJsonResp(c, http.StatusOK, response{Items: withStatuses(res), Count: count})
}

func (h *handler) getActivities(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	id, err := parseListingId(c)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	type params struct {
		Offset int32 `query:"offset"`
		Limit  int32 `query:"limit"`
	}

	p := params{}
	if err := c.Bind(&p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	res, err := h.listing.GetActivities(ctx, id, p.Offset, p.Limit)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, res)
}

func (h *handler) getAllActive(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	res, err := h.listing.GetAllActive(ctx)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, withStatuses(res))
}

func (h *handler) updatePrice(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	id, err := parseListingId(c)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	type payload struct {
		Price string `json:"price" validate:"required"`
	}

	p := payload{}
	if err := c.Bind(&p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(&p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	if err := h.listing.UpdatePrice(ctx, id, p.Price, caller(c)); err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, "ok")
}

func (h *handler) updateClosingTime(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	id, err := parseListingId(c)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	type payload struct {
		// ClosingTime in unix seconds
		ClosingTime int64 `json:"closingTime" validate:"required"`
	}

	p := payload{}
	if err := c.Bind(&p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(&p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	if err := h.listing.UpdateClosingTime(ctx, id, time.Unix(p.ClosingTime, 0), caller(c)); err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, "ok")
}

func (h *handler) cancel(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	id, err := parseListingId(c)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	if err := h.listing.Cancel(ctx, id, caller(c)); err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	return delivery.MakeJsonResp(c, http.StatusOK, "ok")
}

func (h *handler) buy(c echo.Context) error {
	ctx := c.Get("ctx").(ctx.Ctx)

	id, err := parseListingId(c)
	if err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	type payload struct {
		Payment string `json:"payment" validate:"required"`
	}

	p := payload{}
	if err := c.Bind(&p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}
	if err := c.Validate(&p); err != nil {
		return delivery.MakeJsonResp(c, http.StatusBadRequest, err)
	}

	if err := h.listing.Buy(ctx, id, p.Payment, caller(c)); err != nil {
		return delivery.MakeJsonResp(c, http.StatusInternalServerError, err)
	}
	met.BumpSum("buy.count", 1, "listingId", strconv.FormatUint(uint64(id), 10))
	return delivery.MakeJsonResp(c, http.StatusOK, "ok")
}

type listingWithStatus struct {
	*listing.Listing
	Status listing.Status `json:"status"`
}

func withStatus(item *listing.Listing) listingWithStatus {
	return listingWithStatus{item, item.StatusAt(time.Now())}
}

func withStatuses(items []*listing.Listing) []listingWithStatus {
	now := time.Now()
	res := make([]listingWithStatus, 0, len(items))
	for _, item := range items {
		res = append(res, listingWithStatus{item, item.StatusAt(now)})
	}
	return res
}
