package delivery

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tokenmart/goapi/domain"
	"github.com/tokenmart/goapi/service/query"
)

type JsonResponseStatus string

const (
	JsonResponseStatusSuccess JsonResponseStatus = "success"
	JsonResponseStatusFail    JsonResponseStatus = "fail"
)

type JsonResponse struct {
	Data   interface{}        `json:"data"`
	Status JsonResponseStatus `json:"status"`
}

// MakeJsonResp renders data in the response envelope. Errors are remapped to
// the HTTP status matching their domain error kind before rendering.
func MakeJsonResp(c echo.Context, status int, data interface{}) error {
	if err, ok := data.(error); ok {
		status = errStatus(err, status)
		data = err.Error()
	}

	if status >= 400 {
		return c.JSON(status, JsonResponse{data, JsonResponseStatusFail})
	}

	if status >= 200 && status < 300 {
		return c.JSON(status, JsonResponse{data, JsonResponseStatusSuccess})
	}

	return c.JSON(status, data)
}

func errStatus(err error, fallback int) int {
	switch {
	case errors.Is(err, domain.ErrNotFound) || errors.Is(err, query.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOnlySeller):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrListingAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotErc721),
		errors.Is(err, domain.ErrInvalidChainId),
		errors.Is(err, domain.ErrInvalidNumberFormat),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, domain.ErrInvalidClosingTime),
		errors.Is(err, domain.ErrInvalidFeeBps),
		errors.Is(err, domain.ErrListingNotActive),
		errors.Is(err, domain.ErrNotTokenOwner),
		errors.Is(err, domain.ErrMarketplaceNotApproved),
		errors.Is(err, domain.ErrIncorrectPurchaseAmount),
		errors.Is(err, domain.ErrFeesExceedPrice),
		errors.Is(err, domain.ErrBadParamInput):
		return http.StatusBadRequest
	default:
		return fallback
	}
}
