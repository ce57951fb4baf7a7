package platform

import (
	"time"

	"github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/domain"
)

// Settings is the process-wide marketplace configuration read on every
// purchase: the platform fee rate and its recipient. One document per chain.
type Settings struct {
	ChainId      domain.ChainId `json:"chainId" bson:"chainId"`
	FeeBps       int64          `json:"feeBps" bson:"feeBps"`
	FeeRecipient domain.Address `json:"feeRecipient" bson:"feeRecipient"`
	UpdatedAt    time.Time      `json:"updatedAt" bson:"updatedAt"`
}

type Patchable struct {
	FeeBps       *int64          `json:"feeBps" bson:"feeBps,omitempty"`
	FeeRecipient *domain.Address `json:"feeRecipient" bson:"feeRecipient,omitempty"`
	UpdatedAt    *time.Time      `json:"updatedAt" bson:"updatedAt,omitempty"`
}

type Repo interface {
	FindOne(ctx ctx.Ctx, chainId domain.ChainId) (*Settings, error)
	Upsert(ctx ctx.Ctx, settings *Settings) error
	Update(ctx ctx.Ctx, chainId domain.ChainId, patchable Patchable) error
}

type UseCase interface {
	Get(ctx ctx.Ctx, chainId domain.ChainId) (*Settings, error)
	// SetFeeBps rejects bps above 10000 with domain.ErrInvalidFeeBps;
	// exactly 10000 is allowed
	SetFeeBps(ctx ctx.Ctx, chainId domain.ChainId, bps int64, actor domain.Address) error
	SetFeeRecipient(ctx ctx.Ctx, chainId domain.ChainId, recipient domain.Address, actor domain.Address) error
}
