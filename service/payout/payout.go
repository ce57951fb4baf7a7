package payout

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	bCtx "github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/base/log"
	"github.com/tokenmart/goapi/domain"
	"github.com/tokenmart/goapi/service/chain"
)

// Service disburses native currency held by the operator account
// to sale participants.
type Service interface {
	Transfer(ctx bCtx.Ctx, chainId domain.ChainId, to domain.Address, amount *big.Int) (domain.TxHash, error)
}

type impl struct {
	chainService chain.Client
}

func New(chainService chain.Client) Service {
	return &impl{chainService: chainService}
}

func (im *impl) Transfer(ctx bCtx.Ctx, chainId domain.ChainId, to domain.Address, amount *big.Int) (domain.TxHash, error) {
	if amount == nil || amount.Sign() == 0 {
		return "", nil
	}
	txHash, err := im.chainService.TransferValue(ctx, int32(chainId), common.HexToAddress(string(to)), amount)
	if err != nil {
		ctx.WithFields(log.Fields{
			"chainId": chainId,
			"to":      to,
			"amount":  amount.String(),
			"err":     err,
		}).Error("failed to transfer value")
		return "", err
	}
	return domain.TxHash(txHash), nil
}
