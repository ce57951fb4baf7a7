package listing

import (
	"time"

	"github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/domain"
)

// Settlement is the disbursement ledger for one purchase. It is written after
// the sold flip and before any funds move; every completed leg is recorded so
// a failed settlement resumes where it stopped instead of paying a leg twice.
// Value transfers cannot be clawed back, so a listing whose settlement has
// disbursed anything never returns to active.
type Settlement struct {
	ListingId domain.ListingId `json:"listingId" bson:"listingId"`
	ChainId   domain.ChainId   `json:"chainId" bson:"chainId"`
	Buyer     domain.Address   `json:"buyer" bson:"buyer"`
	// Payment is the exact purchase amount in wei, base-10 string
	Payment         string         `json:"payment" bson:"payment"`
	RoyaltyReceiver domain.Address `json:"royaltyReceiver" bson:"royaltyReceiver,omitempty"`
	RoyaltyAmount   string         `json:"royaltyAmount" bson:"royaltyAmount"`
	FeeRecipient    domain.Address `json:"feeRecipient" bson:"feeRecipient,omitempty"`
	FeeAmount       string         `json:"feeAmount" bson:"feeAmount"`
	SellerProceeds  string         `json:"sellerProceeds" bson:"sellerProceeds"`

	// leg completion flags; a flagged leg is skipped on resume
	RoyaltyPaid      bool `json:"royaltyPaid" bson:"royaltyPaid"`
	FeePaid          bool `json:"feePaid" bson:"feePaid"`
	SellerPaid       bool `json:"sellerPaid" bson:"sellerPaid"`
	AssetTransferred bool `json:"assetTransferred" bson:"assetTransferred"`

	RoyaltyTxHash domain.TxHash `json:"royaltyTxHash" bson:"royaltyTxHash,omitempty"`
	FeeTxHash     domain.TxHash `json:"feeTxHash" bson:"feeTxHash,omitempty"`
	SellerTxHash  domain.TxHash `json:"sellerTxHash" bson:"sellerTxHash,omitempty"`
	AssetTxHash   domain.TxHash `json:"assetTxHash" bson:"assetTxHash,omitempty"`

	Completed bool      `json:"completed" bson:"completed"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// FundsMoved reports whether any disbursement leg executed a transfer. Legs
// skipped for a zero amount are flagged paid but carry no tx hash.
func (s *Settlement) FundsMoved() bool {
	return s.RoyaltyTxHash != "" || s.FeeTxHash != "" || s.SellerTxHash != ""
}

// SettlementPatchable carries the per-leg progress fields
type SettlementPatchable struct {
	RoyaltyPaid      *bool          `json:"royaltyPaid" bson:"royaltyPaid,omitempty"`
	FeePaid          *bool          `json:"feePaid" bson:"feePaid,omitempty"`
	SellerPaid       *bool          `json:"sellerPaid" bson:"sellerPaid,omitempty"`
	AssetTransferred *bool          `json:"assetTransferred" bson:"assetTransferred,omitempty"`
	RoyaltyTxHash    *domain.TxHash `json:"royaltyTxHash" bson:"royaltyTxHash,omitempty"`
	FeeTxHash        *domain.TxHash `json:"feeTxHash" bson:"feeTxHash,omitempty"`
	SellerTxHash     *domain.TxHash `json:"sellerTxHash" bson:"sellerTxHash,omitempty"`
	AssetTxHash      *domain.TxHash `json:"assetTxHash" bson:"assetTxHash,omitempty"`
	Completed        *bool          `json:"completed" bson:"completed,omitempty"`
}

type SettlementRepo interface {
	FindOne(ctx ctx.Ctx, id domain.ListingId) (*Settlement, error)
	Insert(ctx ctx.Ctx, settlement *Settlement) error
	Update(ctx ctx.Ctx, id domain.ListingId, patchable SettlementPatchable) error
	// Remove deletes the ledger of an aborted settlement that moved no funds
	Remove(ctx ctx.Ctx, id domain.ListingId) error
}
