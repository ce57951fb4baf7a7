package domain

import (
	"math/big"
	"strings"
)

type ChainId int32

type Address string

const EmptyAddress = Address("0x0000000000000000000000000000000000000000")

func (a Address) ToLower() Address {
	return Address(strings.ToLower(string(a)))
}

func (a Address) ToLowerStr() string {
	return strings.ToLower(string(a))
}

func (a Address) IsEmpty() bool {
	return len(a) == 0 || a.ToLower() == EmptyAddress
}

func (a Address) Equals(b Address) bool {
	return a.ToLowerStr() == b.ToLowerStr()
}

type TokenId string

func (i TokenId) String() string {
	return string(i)
}

func (i TokenId) ToBigInt() (*big.Int, error) {
	id, ok := new(big.Int).SetString(i.String(), 10)
	if !ok {
		return nil, ErrInvalidNumberFormat
	}
	return id, nil
}

// ListingId identifies a listing. Assigned from a monotonic counter at
// creation; zero is never a valid id.
type ListingId uint64

// MaxFeeBps is the denominator for basis-point fee math; 10000 = 100%.
const MaxFeeBps = 10000

type TxHash string

// Table names the mongo collection an entity lives in
type Table string

const (
	TableListings            Table = "listings"
	TableListingFingerprints Table = "listing_fingerprints"
	TableListingSettlements  Table = "listing_settlements"
	TableCounters            Table = "counters"
	TablePlatformSettings    Table = "platform_settings"
	TableActivities          Table = "marketplace_activities"
	TableHealthChecks        Table = "health_checks"
)

// ToBigInt parses a sequence of base-10 integer strings
func ToBigInt(nums []string) ([]*big.Int, error) {
	var bns []*big.Int
	for _, n := range nums {
		bn, ok := new(big.Int).SetString(n, 10)
		if !ok {
			return nil, ErrInvalidNumberFormat
		}
		bns = append(bns, bn)
	}
	return bns, nil
}
