package usecase

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"

	"github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/base/log"
	"github.com/tokenmart/goapi/base/ptr"
	"github.com/tokenmart/goapi/domain"
	"github.com/tokenmart/goapi/domain/listing"
	"github.com/tokenmart/goapi/domain/platform"
	"github.com/tokenmart/goapi/service/chain/contract"
	"github.com/tokenmart/goapi/service/payout"
	"github.com/tokenmart/goapi/service/query"
)

var timeNow = time.Now

type ListingUseCaseCfg struct {
	ListingRepo     listing.Repo
	FingerprintRepo listing.FingerprintRepo
	ActivityRepo    listing.ActivityRepo
	SettlementRepo  listing.SettlementRepo
	PlatformRepo    platform.Repo
	Erc721          contract.Erc721Contract
	Erc2981         contract.Erc2981Contract
	Payout          payout.Service
	// Operator is the escrow account the marketplace transacts from.
	// Sellers grant it transfer approval; buyers wire payment through it.
	Operator domain.Address
}

type impl struct {
	listingRepo     listing.Repo
	fingerprintRepo listing.FingerprintRepo
	activityRepo    listing.ActivityRepo
	settlementRepo  listing.SettlementRepo
	platformRepo    platform.Repo
	erc721          contract.Erc721Contract
	erc2981         contract.Erc2981Contract
	payout          payout.Service
	operator        domain.Address
}

func New(cfg *ListingUseCaseCfg) listing.UseCase {
	return &impl{
		listingRepo:     cfg.ListingRepo,
		fingerprintRepo: cfg.FingerprintRepo,
		activityRepo:    cfg.ActivityRepo,
		settlementRepo:  cfg.SettlementRepo,
		platformRepo:    cfg.PlatformRepo,
		erc721:          cfg.Erc721,
		erc2981:         cfg.Erc2981,
		payout:          cfg.Payout,
		operator:        cfg.Operator,
	}
}

func (im *impl) Create(ctx ctx.Ctx, req listing.CreateReq, seller domain.Address) (domain.ListingId, error) {
	if req.ChainId <= 0 {
		return 0, domain.ErrInvalidChainId
	}

	price, err := parsePrice(req.Price)
	if err != nil {
		return 0, err
	}

	if req.Duration <= 0 {
		return 0, domain.ErrInvalidClosingTime
	}

	// a contract without erc165 makes the probe revert; treat that the
	// same as answering false
	is721, err := im.erc721.Supports721Interface(ctx, int32(req.ChainId), string(req.AssetContract))
	if err != nil {
		ctx.WithFields(log.Fields{
			"err":           err,
			"assetContract": req.AssetContract,
		}).Warn("supportsInterface probe failed")
		return 0, domain.ErrNotErc721
	}
	if !is721 {
		return 0, domain.ErrNotErc721
	}

	tokenId, err := req.TokenId.ToBigInt()
	if err != nil {
		return 0, err
	}

	if err := im.validate(ctx, req.ChainId, req.AssetContract, tokenId, seller); err != nil {
		return 0, err
	}

	now := timeNow()

	if err := im.checkDuplicate(ctx, req.ChainId, req.AssetContract, req.TokenId, now); err != nil {
		return 0, err
	}

	id, err := im.listingRepo.NextId(ctx)
	if err != nil {
		ctx.WithField("err", err).Error("failed to listingRepo.NextId")
		return 0, err
	}

	item := &listing.Listing{
		Id:            id,
		ChainId:       req.ChainId,
		AssetContract: req.AssetContract,
		TokenId:       req.TokenId,
		Price:         price.String(),
		StartTime:     now,
		ClosingTime:   now.Add(req.Duration),
		Seller:        seller,
	}
	if err := im.listingRepo.Insert(ctx, item); err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
			"id":  id,
		}).Error("failed to listingRepo.Insert")
		return 0, err
	}

	if err := im.fingerprintRepo.Upsert(ctx, &listing.FingerprintEntry{
		Fingerprint: item.Fingerprint(),
		ListingId:   id,
	}); err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
			"id":  id,
		}).Error("failed to fingerprintRepo.Upsert")
		return 0, err
	}

	im.emit(ctx, &listing.Activity{
		ChainId:       item.ChainId,
		ListingId:     item.Id,
		AssetContract: item.AssetContract,
		TokenId:       item.TokenId,
		Kind:          listing.ActivityListingCreated,
		Account:       seller.ToLower(),
		Value:         item.Price,
		DisplayValue:  toDisplayValue(price),
		Time:          now,
	})

	return id, nil
}

// checkDuplicate consults the fingerprint index and rejects when the latest
// listing for the asset is still active. Stale entries pointing at sold,
// canceled or expired listings fall through.
func (im *impl) checkDuplicate(ctx ctx.Ctx, chainId domain.ChainId, assetContract domain.Address, tokenId domain.TokenId, now time.Time) error {
	entry, err := im.fingerprintRepo.FindOne(ctx, listing.Fingerprint(chainId, assetContract, tokenId))
	if err == query.ErrNotFound {
		return nil
	} else if err != nil {
		ctx.WithField("err", err).Error("failed to fingerprintRepo.FindOne")
		return err
	}

	prev, err := im.listingRepo.FindOne(ctx, entry.ListingId)
	if err == query.ErrNotFound {
		return nil
	} else if err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
			"id":  entry.ListingId,
		}).Error("failed to listingRepo.FindOne")
		return err
	}

	if prev.StatusAt(now) == listing.StatusActive {
		return domain.ErrListingAlreadyActive
	}
	return nil
}

// validate re-checks the on-chain facts the listing depends on: the seller
// must still own the asset and the operator must still hold transfer approval.
func (im *impl) validate(ctx ctx.Ctx, chainId domain.ChainId, assetContract domain.Address, tokenId *big.Int, seller domain.Address) error {
	owner, err := im.erc721.OwnerOf(ctx, int32(chainId), string(assetContract), tokenId)
	if err != nil {
		ctx.WithFields(log.Fields{
			"err":           err,
			"assetContract": assetContract,
			"tokenId":       tokenId.String(),
		}).Error("failed to erc721.OwnerOf")
		return err
	}
	if !domain.Address(owner).Equals(seller) {
		return domain.ErrNotTokenOwner
	}

	approved, err := im.erc721.GetApproved(ctx, int32(chainId), string(assetContract), tokenId)
	if err != nil {
		ctx.WithFields(log.Fields{
			"err":           err,
			"assetContract": assetContract,
			"tokenId":       tokenId.String(),
		}).Error("failed to erc721.GetApproved")
		return err
	}
	if domain.Address(approved).Equals(im.operator) {
		return nil
	}

	approvedForAll, err := im.erc721.IsApprovedForAll(ctx, int32(chainId), string(assetContract), string(seller), string(im.operator))
	if err != nil {
		ctx.WithFields(log.Fields{
			"err":           err,
			"assetContract": assetContract,
			"seller":        seller,
		}).Error("failed to erc721.IsApprovedForAll")
		return err
	}
	if !approvedForAll {
		return domain.ErrMarketplaceNotApproved
	}
	return nil
}

func (im *impl) Get(ctx ctx.Ctx, id domain.ListingId) (*listing.Listing, error) {
	item, err := im.listingRepo.FindOne(ctx, id)
	if err == query.ErrNotFound {
		return nil, domain.ErrNotFound
	} else if err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
			"id":  id,
		}).Error("failed to listingRepo.FindOne")
		return nil, err
	}
	return item, nil
}

func (im *impl) GetAll(ctx ctx.Ctx, offset, limit int32) ([]*listing.Listing, int, error) {
	res, err := im.listingRepo.FindAll(
		ctx,
		listing.WithPagination(offset, limit),
		listing.WithSort("id"),
	)
	if err != nil {
		ctx.WithField("err", err).Error("failed to listingRepo.FindAll")
		return nil, 0, err
	}

	count, err := im.listingRepo.Count(ctx)
	if err != nil {
		ctx.WithField("err", err).Error("failed to listingRepo.Count")
		return nil, 0, err
	}

	return res, count, nil
}

func (im *impl) GetActivities(ctx ctx.Ctx, id domain.ListingId, offset, limit int32) ([]*listing.Activity, error) {
	if _, err := im.Get(ctx, id); err != nil {
		return nil, err
	}

	res, err := im.activityRepo.FindAll(
		ctx,
		listing.ActivityWithListingId(id),
		listing.ActivityWithPagination(offset, limit),
	)
	if err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
			"id":  id,
		}).Error("failed to activityRepo.FindAll")
		return nil, err
	}
	return res, nil
}

func (im *impl) GetAllActive(ctx ctx.Ctx) ([]*listing.Listing, error) {
	res, err := im.listingRepo.FindAll(
		ctx,
		listing.WithSold(false),
		listing.WithCanceled(false),
		listing.WithClosingTimeGT(timeNow()),
		listing.WithSort("id"),
	)
	if err != nil {
		ctx.WithField("err", err).Error("failed to listingRepo.FindAll")
		return nil, err
	}
	return res, nil
}

// requireActiveSellerListing loads the listing and enforces the common
// mutation preconditions: the caller is the seller and the listing is active.
func (im *impl) requireActiveSellerListing(ctx ctx.Ctx, id domain.ListingId, caller domain.Address, now time.Time) (*listing.Listing, error) {
	item, err := im.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.Seller.Equals(caller) {
		return nil, domain.ErrOnlySeller
	}
	if item.StatusAt(now) != listing.StatusActive {
		return nil, domain.ErrListingNotActive
	}
	return item, nil
}

func (im *impl) UpdatePrice(ctx ctx.Ctx, id domain.ListingId, newPrice string, caller domain.Address) error {
	price, err := parsePrice(newPrice)
	if err != nil {
		return err
	}

	now := timeNow()
	item, err := im.requireActiveSellerListing(ctx, id, caller, now)
	if err != nil {
		return err
	}

	tokenId, err := item.TokenId.ToBigInt()
	if err != nil {
		return err
	}
	if err := im.validate(ctx, item.ChainId, item.AssetContract, tokenId, item.Seller); err != nil {
		return err
	}

	if err := im.listingRepo.Update(ctx, id, listing.Patchable{Price: ptr.String(price.String())}); err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
			"id":  id,
		}).Error("failed to listingRepo.Update")
		return err
	}

	im.emit(ctx, &listing.Activity{
		ChainId:       item.ChainId,
		ListingId:     item.Id,
		AssetContract: item.AssetContract,
		TokenId:       item.TokenId,
		Kind:          listing.ActivityPriceUpdated,
		Account:       caller.ToLower(),
		Value:         price.String(),
		DisplayValue:  toDisplayValue(price),
		Time:          now,
	})

	return nil
}

func (im *impl) UpdateClosingTime(ctx ctx.Ctx, id domain.ListingId, newClosingTime time.Time, caller domain.Address) error {
	now := timeNow()
	if !newClosingTime.After(now) {
		return domain.ErrInvalidClosingTime
	}

	item, err := im.requireActiveSellerListing(ctx, id, caller, now)
	if err != nil {
		return err
	}

	tokenId, err := item.TokenId.ToBigInt()
	if err != nil {
		return err
	}
	if err := im.validate(ctx, item.ChainId, item.AssetContract, tokenId, item.Seller); err != nil {
		return err
	}

	if err := im.listingRepo.Update(ctx, id, listing.Patchable{ClosingTime: &newClosingTime}); err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
			"id":  id,
		}).Error("failed to listingRepo.Update")
		return err
	}

	im.emit(ctx, &listing.Activity{
		ChainId:       item.ChainId,
		ListingId:     item.Id,
		AssetContract: item.AssetContract,
		TokenId:       item.TokenId,
		Kind:          listing.ActivityClosingTimeUpdated,
		Account:       caller.ToLower(),
		Value:         decimal.NewFromInt(newClosingTime.Unix()).String(),
		DisplayValue:  newClosingTime.UTC().Format(time.RFC3339),
		Time:          now,
	})

	return nil
}

func (im *impl) Cancel(ctx ctx.Ctx, id domain.ListingId, caller domain.Address) error {
	now := timeNow()
	item, err := im.requireActiveSellerListing(ctx, id, caller, now)
	if err != nil {
		return err
	}

	if err := im.listingRepo.Update(ctx, id, listing.Patchable{Canceled: ptr.Bool(true)}); err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
			"id":  id,
		}).Error("failed to listingRepo.Update")
		return err
	}

	im.emit(ctx, &listing.Activity{
		ChainId:       item.ChainId,
		ListingId:     item.Id,
		AssetContract: item.AssetContract,
		TokenId:       item.TokenId,
		Kind:          listing.ActivityListingCanceled,
		Account:       caller.ToLower(),
		Time:          now,
	})

	return nil
}

// Buy settles a purchase. The flip to sold is a conditional update that only
// matches a still-active record, so at most one concurrent buyer proceeds to
// settlement. Before any funds move a settlement ledger is written; each
// disbursement leg is flagged in it as it completes. A failed settlement that
// already moved funds keeps the listing sold and the same buyer resumes it by
// retrying, paying only the legs still open. The listing only returns to
// active when nothing has been disbursed.
func (im *impl) Buy(ctx ctx.Ctx, id domain.ListingId, payment string, buyer domain.Address) error {
	now := timeNow()

	item, err := im.Get(ctx, id)
	if err != nil {
		return err
	}
	status := item.StatusAt(now)
	if status == listing.StatusSold {
		return im.resumeSettlement(ctx, item, payment, buyer)
	}
	if status != listing.StatusActive {
		return domain.ErrListingNotActive
	}

	paid, err := parsePrice(payment)
	if err != nil {
		return err
	}
	price, ok := new(big.Int).SetString(item.Price, 10)
	if !ok {
		return domain.ErrInvalidNumberFormat
	}
	if paid.Cmp(price) != 0 {
		return xerrors.Errorf("expected %s got %s: %w", price, paid, domain.ErrIncorrectPurchaseAmount)
	}

	tokenId, err := item.TokenId.ToBigInt()
	if err != nil {
		return err
	}

	// the on-chain facts may have drifted since listing time
	if err := im.validate(ctx, item.ChainId, item.AssetContract, tokenId, item.Seller); err != nil {
		return err
	}

	settings, err := im.platformRepo.FindOne(ctx, item.ChainId)
	if err != nil {
		ctx.WithFields(log.Fields{
			"err":     err,
			"chainId": item.ChainId,
		}).Error("failed to platformRepo.FindOne")
		return err
	}

	// flip sold before any external interaction
	if err := im.listingRepo.MarkSold(ctx, id, now); err != nil {
		if err != domain.ErrListingNotActive {
			ctx.WithFields(log.Fields{
				"err": err,
				"id":  id,
			}).Error("failed to listingRepo.MarkSold")
		}
		return err
	}

	platformFee := new(big.Int).Div(new(big.Int).Mul(price, big.NewInt(settings.FeeBps)), big.NewInt(domain.MaxFeeBps))
	royaltyReceiver, royaltyAmount := im.royaltyOf(ctx, item, tokenId, price)

	sellerProceeds := new(big.Int).Sub(price, platformFee)
	sellerProceeds.Sub(sellerProceeds, royaltyAmount)
	if sellerProceeds.Sign() < 0 {
		im.unwindSold(ctx, id)
		return domain.ErrFeesExceedPrice
	}

	settlement := &listing.Settlement{
		ListingId:       item.Id,
		ChainId:         item.ChainId,
		Buyer:           buyer.ToLower(),
		Payment:         price.String(),
		RoyaltyReceiver: royaltyReceiver,
		RoyaltyAmount:   royaltyAmount.String(),
		FeeRecipient:    settings.FeeRecipient.ToLower(),
		FeeAmount:       platformFee.String(),
		SellerProceeds:  sellerProceeds.String(),
		CreatedAt:       now,
	}
	if err := im.settlementRepo.Insert(ctx, settlement); err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
			"id":  id,
		}).Error("failed to settlementRepo.Insert")
		im.unwindSold(ctx, id)
		return err
	}

	return im.runSettlement(ctx, item, tokenId, settlement)
}

// resumeSettlement retries a settlement that failed partway. Only the buyer
// on the ledger may resume, with the original payment; a sold listing without
// an open ledger is simply sold.
func (im *impl) resumeSettlement(ctx ctx.Ctx, item *listing.Listing, payment string, buyer domain.Address) error {
	settlement, err := im.settlementRepo.FindOne(ctx, item.Id)
	if err == query.ErrNotFound {
		return domain.ErrListingNotActive
	} else if err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
			"id":  item.Id,
		}).Error("failed to settlementRepo.FindOne")
		return err
	}

	if settlement.Completed || !settlement.Buyer.Equals(buyer) {
		return domain.ErrListingNotActive
	}

	paid, err := parsePrice(payment)
	if err != nil {
		return err
	}
	expected, ok := new(big.Int).SetString(settlement.Payment, 10)
	if !ok {
		return domain.ErrInvalidNumberFormat
	}
	if paid.Cmp(expected) != 0 {
		return xerrors.Errorf("expected %s got %s: %w", expected, paid, domain.ErrIncorrectPurchaseAmount)
	}

	tokenId, err := item.TokenId.ToBigInt()
	if err != nil {
		return err
	}

	return im.runSettlement(ctx, item, tokenId, settlement)
}

// runSettlement disburses the open legs of the ledger in order: royalty,
// platform fee, seller proceeds, then the asset transfer. Each completed leg
// is flagged before the next starts so a retry never pays it again.
func (im *impl) runSettlement(ctx ctx.Ctx, item *listing.Listing, tokenId *big.Int, settlement *listing.Settlement) error {
	amounts, err := domain.ToBigInt([]string{settlement.Payment, settlement.RoyaltyAmount, settlement.FeeAmount, settlement.SellerProceeds})
	if err != nil {
		return err
	}
	payment, royalty, fee, proceeds := amounts[0], amounts[1], amounts[2], amounts[3]

	if !settlement.RoyaltyPaid {
		var tx domain.TxHash
		if royalty.Sign() > 0 && !settlement.RoyaltyReceiver.IsEmpty() {
			if tx, err = im.payout.Transfer(ctx, item.ChainId, settlement.RoyaltyReceiver, royalty); err != nil {
				return im.abortSettlement(ctx, item, settlement, "royalty", err)
			}
		}
		settlement.RoyaltyPaid = true
		settlement.RoyaltyTxHash = tx
		im.markLeg(ctx, item.Id, listing.SettlementPatchable{RoyaltyPaid: ptr.Bool(true), RoyaltyTxHash: &tx})
	}

	if !settlement.FeePaid {
		var tx domain.TxHash
		if fee.Sign() > 0 && !settlement.FeeRecipient.IsEmpty() {
			if tx, err = im.payout.Transfer(ctx, item.ChainId, settlement.FeeRecipient, fee); err != nil {
				return im.abortSettlement(ctx, item, settlement, "fee", err)
			}
		}
		settlement.FeePaid = true
		settlement.FeeTxHash = tx
		im.markLeg(ctx, item.Id, listing.SettlementPatchable{FeePaid: ptr.Bool(true), FeeTxHash: &tx})
	}

	if !settlement.SellerPaid {
		var tx domain.TxHash
		if proceeds.Sign() > 0 {
			if tx, err = im.payout.Transfer(ctx, item.ChainId, item.Seller, proceeds); err != nil {
				return im.abortSettlement(ctx, item, settlement, "seller", err)
			}
		}
		settlement.SellerPaid = true
		settlement.SellerTxHash = tx
		im.markLeg(ctx, item.Id, listing.SettlementPatchable{SellerPaid: ptr.Bool(true), SellerTxHash: &tx})
	}

	if !settlement.AssetTransferred {
		txHash, err := im.erc721.SafeTransferFrom(ctx, int32(item.ChainId), string(item.AssetContract), string(item.Seller), string(settlement.Buyer), tokenId)
		if err != nil {
			return im.abortSettlement(ctx, item, settlement, "asset", err)
		}
		tx := domain.TxHash(txHash)
		settlement.AssetTransferred = true
		settlement.AssetTxHash = tx
		im.markLeg(ctx, item.Id, listing.SettlementPatchable{AssetTransferred: ptr.Bool(true), AssetTxHash: &tx})
	}

	im.markLeg(ctx, item.Id, listing.SettlementPatchable{Completed: ptr.Bool(true)})

	im.emit(ctx, &listing.Activity{
		ChainId:       item.ChainId,
		ListingId:     item.Id,
		AssetContract: item.AssetContract,
		TokenId:       item.TokenId,
		Kind:          listing.ActivityPurchaseCompleted,
		Account:       settlement.Buyer,
		Value:         settlement.Payment,
		DisplayValue:  toDisplayValue(payment),
		Time:          timeNow(),
	})

	return nil
}

// abortSettlement handles a failed leg. While nothing has been disbursed the
// purchase unwinds completely; once any funds moved the listing stays sold
// and the ledger keeps the progress for a retry.
func (im *impl) abortSettlement(ctx ctx.Ctx, item *listing.Listing, settlement *listing.Settlement, leg string, cause error) error {
	ctx.WithFields(log.Fields{
		"err": cause,
		"id":  item.Id,
		"leg": leg,
	}).Error("settlement leg failed")

	if !settlement.FundsMoved() {
		if err := im.settlementRepo.Remove(ctx, item.Id); err != nil {
			ctx.WithFields(log.Fields{
				"err": err,
				"id":  item.Id,
			}).Error("failed to settlementRepo.Remove")
			return domain.ErrTransferFailed
		}
		im.unwindSold(ctx, item.Id)
	}

	return domain.ErrTransferFailed
}

// markLeg records leg progress on the ledger. A failed write is logged but
// does not stop the settlement; the in-memory flags keep the current run
// consistent.
func (im *impl) markLeg(ctx ctx.Ctx, id domain.ListingId, patch listing.SettlementPatchable) {
	if err := im.settlementRepo.Update(ctx, id, patch); err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
			"id":  id,
		}).Error("failed to settlementRepo.Update")
	}
}

// royaltyOf asks the collection for an ERC-2981 royalty. Collections without
// royalty support revert the call; that and a zero answer both mean no
// royalty is due.
func (im *impl) royaltyOf(ctx ctx.Ctx, item *listing.Listing, tokenId *big.Int, price *big.Int) (domain.Address, *big.Int) {
	receiver, amount, err := im.erc2981.RoyaltyInfo(ctx, int32(item.ChainId), string(item.AssetContract), tokenId, price)
	if err != nil {
		ctx.WithFields(log.Fields{
			"err":           err,
			"assetContract": item.AssetContract,
		}).Warn("royaltyInfo unavailable, skipping royalty")
		return domain.EmptyAddress, big.NewInt(0)
	}
	if domain.Address(receiver).IsEmpty() || amount == nil || amount.Sign() <= 0 {
		return domain.EmptyAddress, big.NewInt(0)
	}
	return domain.Address(receiver).ToLower(), amount
}

func (im *impl) unwindSold(ctx ctx.Ctx, id domain.ListingId) {
	if err := im.listingRepo.Update(ctx, id, listing.Patchable{Sold: ptr.Bool(false)}); err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
			"id":  id,
		}).Error("failed to unwind sold flag")
	}
}

// emit records an activity; failures are logged but never surface, the
// triggering operation has already succeeded.
func (im *impl) emit(ctx ctx.Ctx, activity *listing.Activity) {
	if err := im.activityRepo.Insert(ctx, activity); err != nil {
		ctx.WithFields(log.Fields{
			"err":  err,
			"kind": activity.Kind,
		}).Warn("failed to record activity")
	}
}

func parsePrice(s string) (*big.Int, error) {
	price, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, domain.ErrInvalidNumberFormat
	}
	if price.Sign() <= 0 {
		return nil, domain.ErrBadParamInput
	}
	return price, nil
}

// toDisplayValue renders a wei amount in whole native units
func toDisplayValue(wei *big.Int) string {
	return decimal.NewFromBigInt(wei, -18).String()
}
