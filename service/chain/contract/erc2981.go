package contract

import (
	"math/big"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	baseabi "github.com/tokenmart/goapi/base/abi"
	bCtx "github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/service/chain"
)

type Erc2981Contract interface {
	RoyaltyInfo(ctx bCtx.Ctx, chainId int32, addr string, tokenId *big.Int, salePrice *big.Int) (string, *big.Int, error)
}

type Erc2981 struct {
	chainService chain.Client
	abi          ethabi.ABI
}

func NewErc2981(chainService chain.Client) Erc2981Contract {
	return &Erc2981{
		abi:          baseabi.ERC2981RoyaltyABI,
		chainService: chainService,
	}
}

// RoyaltyInfo queries the collection for its royalty receiver and amount.
// Collections without ERC-2981 support make the call revert, callers are
// expected to treat that as no royalty.
func (r *Erc2981) RoyaltyInfo(ctx bCtx.Ctx, chainId int32, addr string, tokenId *big.Int, salePrice *big.Int) (string, *big.Int, error) {
	method := "royaltyInfo"
	unpacked, err := r.chainService.Call(ctx, chainId, common.HexToAddress(addr), nil, r.abi, method, tokenId, salePrice)
	if err != nil {
		return "", nil, err
	}
	return unpacked[0].(common.Address).String(), unpacked[1].(*big.Int), nil
}
