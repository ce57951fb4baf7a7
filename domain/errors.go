package domain

import "errors"

var (
	// ErrInternalServerError will throw if any Internal Server Error happens
	ErrInternalServerError = errors.New("Internal Server Error")
	// ErrNotFound will throw if the requested item does not exist
	ErrNotFound = errors.New("Your requested Item is not found")
	// ErrBadParamInput will throw if the given request-body or params are not valid
	ErrBadParamInput = errors.New("Given Param is not valid")

	ErrInvalidNumberFormat = errors.New("invalid number format")
	ErrInvalidChainId      = errors.New("invalid chain id")

	// input validity
	ErrNotErc721          = errors.New("asset does not support the erc721 interface")
	ErrInvalidClosingTime = errors.New("closing time must be after current time")
	ErrInvalidFeeBps      = errors.New("fee bps exceeds 10000")

	// authorization
	ErrOnlySeller = errors.New("caller is not the listing seller")

	// state preconditions
	ErrListingNotActive     = errors.New("listing is not active")
	ErrListingAlreadyActive = errors.New("an active listing already exists for this asset")

	// external-fact mismatch
	ErrNotTokenOwner          = errors.New("seller is not the current asset owner")
	ErrMarketplaceNotApproved = errors.New("marketplace lacks transfer approval for the asset")

	// settlement
	ErrIncorrectPurchaseAmount = errors.New("payment does not equal listing price")
	ErrFeesExceedPrice         = errors.New("royalty and platform fee exceed payment")
	ErrTransferFailed          = errors.New("value or asset transfer failed")

	// request error
	ErrInvalidAddress   = errors.New("Invalid address")
	ErrInvalidSignature = errors.New("Invalid signature")
)
