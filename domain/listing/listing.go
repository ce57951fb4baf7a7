package listing

import (
	"fmt"
	"time"

	"github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/domain"
)

// Listing is an offer to sell one erc721 asset at a fixed native-currency
// price until a closing time. The asset is never escrowed; the seller keeps
// ownership (plus a transfer approval for the marketplace) until purchase.
type Listing struct {
	Id            domain.ListingId `json:"id" bson:"id"`
	ChainId       domain.ChainId   `json:"chainId" bson:"chainId"`
	AssetContract domain.Address   `json:"assetContract" bson:"assetContract"`
	TokenId       domain.TokenId   `json:"tokenId" bson:"tokenID"`
	// Price is the exact purchase amount in wei, base-10 string
	Price       string         `json:"price" bson:"price"`
	StartTime   time.Time      `json:"startTime" bson:"startTime"`
	ClosingTime time.Time      `json:"closingTime" bson:"closingTime"`
	Seller      domain.Address `json:"seller" bson:"seller"`
	Sold        bool           `json:"sold" bson:"sold"`
	Canceled    bool           `json:"canceled" bson:"canceled"`
}

func (l *Listing) LowerCase() {
	l.AssetContract = l.AssetContract.ToLower()
	l.Seller = l.Seller.ToLower()
}

// Fingerprint keys the duplicate-listing index
func (l *Listing) Fingerprint() string {
	return Fingerprint(l.ChainId, l.AssetContract, l.TokenId)
}

func Fingerprint(chainId domain.ChainId, assetContract domain.Address, tokenId domain.TokenId) string {
	return fmt.Sprintf("%d:%s:%s", chainId, assetContract.ToLowerStr(), tokenId)
}

// Status is the derived lifecycle stage of a listing. It is never stored;
// every reader recomputes it from the record and the current time.
type Status string

const (
	StatusNonexistent Status = "nonexistent"
	StatusActive      Status = "active"
	StatusExpired     Status = "expired"
	StatusSold        Status = "sold"
	StatusCanceled    Status = "canceled"
)

// StatusAt derives the listing status at the given instant. Sold and
// Canceled take precedence over Expired: a terminal listing past its closing
// time still reports its terminal state.
func (l *Listing) StatusAt(now time.Time) Status {
	switch {
	case l == nil || l.StartTime.IsZero():
		return StatusNonexistent
	case l.Sold:
		return StatusSold
	case l.Canceled:
		return StatusCanceled
	case !l.ClosingTime.After(now):
		return StatusExpired
	default:
		return StatusActive
	}
}

// Patchable carries the seller-mutable listing fields
type Patchable struct {
	Price       *string    `json:"price" bson:"price,omitempty"`
	ClosingTime *time.Time `json:"closingTime" bson:"closingTime,omitempty"`
	Sold        *bool      `json:"sold" bson:"sold,omitempty"`
	Canceled    *bool      `json:"canceled" bson:"canceled,omitempty"`
}

// FingerprintEntry maps an asset fingerprint to the most recent listing id
// created for it. Entries are never removed; a stale entry pointing at an
// inactive listing is harmless because lookups re-derive status live.
type FingerprintEntry struct {
	Fingerprint string           `json:"fingerprint" bson:"fingerprint"`
	ListingId   domain.ListingId `json:"listingId" bson:"listingId"`
}

type FindAllOptions struct {
	ChainId       *domain.ChainId
	AssetContract *domain.Address
	TokenId       *domain.TokenId
	Seller        *domain.Address
	Sold          *bool
	Canceled      *bool
	ClosingTimeGT *time.Time
	Offset        *int32
	Limit         *int32
	Sort          *string
}

type FindAllOptionsFunc func(*FindAllOptions) error

func GetFindAllOptions(opts ...FindAllOptionsFunc) (FindAllOptions, error) {
	res := FindAllOptions{}

	for _, opt := range opts {
		if err := opt(&res); err != nil {
			return res, err
		}
	}

	return res, nil
}

func WithChainId(chainId domain.ChainId) FindAllOptionsFunc {
	return func(options *FindAllOptions) error {
		options.ChainId = &chainId
		return nil
	}
}

func WithAssetContract(assetContract domain.Address) FindAllOptionsFunc {
	return func(options *FindAllOptions) error {
		lowered := assetContract.ToLower()
		options.AssetContract = &lowered
		return nil
	}
}

func WithTokenId(tokenId domain.TokenId) FindAllOptionsFunc {
	return func(options *FindAllOptions) error {
		options.TokenId = &tokenId
		return nil
	}
}

func WithSeller(seller domain.Address) FindAllOptionsFunc {
	return func(options *FindAllOptions) error {
		lowered := seller.ToLower()
		options.Seller = &lowered
		return nil
	}
}

func WithSold(sold bool) FindAllOptionsFunc {
	return func(options *FindAllOptions) error {
		options.Sold = &sold
		return nil
	}
}

func WithCanceled(canceled bool) FindAllOptionsFunc {
	return func(options *FindAllOptions) error {
		options.Canceled = &canceled
		return nil
	}
}

func WithClosingTimeGT(t time.Time) FindAllOptionsFunc {
	return func(options *FindAllOptions) error {
		options.ClosingTimeGT = &t
		return nil
	}
}

func WithPagination(offset int32, limit int32) FindAllOptionsFunc {
	return func(options *FindAllOptions) error {
		options.Offset = &offset
		options.Limit = &limit
		return nil
	}
}

func WithSort(sort string) FindAllOptionsFunc {
	return func(options *FindAllOptions) error {
		options.Sort = &sort
		return nil
	}
}

// Repo owns all listing records; no other component keeps copies
type Repo interface {
	// NextId allocates the next listing id; ids are monotonically
	// increasing and never reused
	NextId(ctx ctx.Ctx) (domain.ListingId, error)
	FindOne(ctx ctx.Ctx, id domain.ListingId) (*Listing, error)
	FindAll(ctx ctx.Ctx, opts ...FindAllOptionsFunc) ([]*Listing, error)
	Count(ctx ctx.Ctx, opts ...FindAllOptionsFunc) (int, error)
	Insert(ctx ctx.Ctx, listing *Listing) error
	Update(ctx ctx.Ctx, id domain.ListingId, patchable Patchable) error
	// MarkSold flips sold on the listing only while it is still active at
	// the given instant. Returns domain.ErrListingNotActive when the
	// record was already sold, canceled, or past its closing time.
	MarkSold(ctx ctx.Ctx, id domain.ListingId, now time.Time) error
}

// FingerprintRepo is the duplicate-listing index
type FingerprintRepo interface {
	FindOne(ctx ctx.Ctx, fingerprint string) (*FingerprintEntry, error)
	Upsert(ctx ctx.Ctx, entry *FingerprintEntry) error
}

// CreateReq carries the caller-supplied fields of a new listing
type CreateReq struct {
	ChainId       domain.ChainId
	AssetContract domain.Address
	TokenId       domain.TokenId
	// Price in wei, base-10 string
	Price    string
	Duration time.Duration
}

type UseCase interface {
	Create(ctx ctx.Ctx, req CreateReq, seller domain.Address) (domain.ListingId, error)
	Get(ctx ctx.Ctx, id domain.ListingId) (*Listing, error)
	// GetAll pages through every listing ascending by id and returns the
	// total count alongside the page
	GetAll(ctx ctx.Ctx, offset, limit int32) ([]*Listing, int, error)
	GetAllActive(ctx ctx.Ctx) ([]*Listing, error)
	GetActivities(ctx ctx.Ctx, id domain.ListingId, offset, limit int32) ([]*Activity, error)
	UpdatePrice(ctx ctx.Ctx, id domain.ListingId, newPrice string, caller domain.Address) error
	UpdateClosingTime(ctx ctx.Ctx, id domain.ListingId, newClosingTime time.Time, caller domain.Address) error
	Cancel(ctx ctx.Ctx, id domain.ListingId, caller domain.Address) error
	Buy(ctx ctx.Ctx, id domain.ListingId, payment string, buyer domain.Address) error
}
