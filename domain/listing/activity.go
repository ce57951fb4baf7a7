package listing

import (
	"time"

	"github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/domain"
)

// ActivityKind names an observable marketplace event
type ActivityKind string

const (
	ActivityListingCreated      ActivityKind = "listingCreated"
	ActivityPriceUpdated        ActivityKind = "priceUpdated"
	ActivityClosingTimeUpdated  ActivityKind = "closingTimeUpdated"
	ActivityListingCanceled     ActivityKind = "listingCanceled"
	ActivityPurchaseCompleted   ActivityKind = "purchaseCompleted"
	ActivityFeeBpsUpdated       ActivityKind = "feeBpsUpdated"
	ActivityFeeRecipientUpdated ActivityKind = "feeRecipientUpdated"
)

// Activity is one observable event for external listeners. Listing events
// carry the affected listing id; administrative events carry the new value.
type Activity struct {
	ChainId       domain.ChainId   `json:"chainId" bson:"chainId"`
	ListingId     domain.ListingId `json:"listingId" bson:"listingId,omitempty"`
	AssetContract domain.Address   `json:"assetContract" bson:"assetContract,omitempty"`
	TokenId       domain.TokenId   `json:"tokenId" bson:"tokenID,omitempty"`
	Kind          ActivityKind     `json:"kind" bson:"kind"`
	Account       domain.Address   `json:"account" bson:"account"`
	// Value holds the event payload: wei price for price events, unix
	// seconds for closing-time events, bps or recipient for fee events
	Value string `json:"value" bson:"value,omitempty"`
	// DisplayValue is the human-readable form of Value where one exists
	DisplayValue string    `json:"displayValue" bson:"displayValue,omitempty"`
	Time         time.Time `json:"time" bson:"time"`
}

type ActivityFindAllOptions struct {
	ChainId   *domain.ChainId
	ListingId *domain.ListingId
	Kind      *ActivityKind
	Account   *domain.Address
	Offset    *int32
	Limit     *int32
}

type ActivityFindAllOptionsFunc func(*ActivityFindAllOptions) error

func GetActivityFindAllOptions(opts ...ActivityFindAllOptionsFunc) (ActivityFindAllOptions, error) {
	res := ActivityFindAllOptions{}

	for _, opt := range opts {
		if err := opt(&res); err != nil {
			return res, err
		}
	}

	return res, nil
}

func ActivityWithChainId(chainId domain.ChainId) ActivityFindAllOptionsFunc {
	return func(options *ActivityFindAllOptions) error {
		options.ChainId = &chainId
		return nil
	}
}

func ActivityWithListingId(id domain.ListingId) ActivityFindAllOptionsFunc {
	return func(options *ActivityFindAllOptions) error {
		options.ListingId = &id
		return nil
	}
}

func ActivityWithKind(kind ActivityKind) ActivityFindAllOptionsFunc {
	return func(options *ActivityFindAllOptions) error {
		options.Kind = &kind
		return nil
	}
}

func ActivityWithAccount(account domain.Address) ActivityFindAllOptionsFunc {
	return func(options *ActivityFindAllOptions) error {
		lowered := account.ToLower()
		options.Account = &lowered
		return nil
	}
}

func ActivityWithPagination(offset int32, limit int32) ActivityFindAllOptionsFunc {
	return func(options *ActivityFindAllOptions) error {
		options.Offset = &offset
		options.Limit = &limit
		return nil
	}
}

type ActivityRepo interface {
	Insert(ctx ctx.Ctx, activity *Activity) error
	FindAll(ctx ctx.Ctx, opts ...ActivityFindAllOptionsFunc) ([]*Activity, error)
}
