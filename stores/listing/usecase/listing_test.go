package usecase

import (
	"errors"
	"math/big"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	bCtx "github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/domain"
	"github.com/tokenmart/goapi/domain/listing"
	"github.com/tokenmart/goapi/domain/platform"
	"github.com/tokenmart/goapi/service/query"
)

const (
	chainId  = domain.ChainId(1)
	asset    = domain.Address("0x00000000000000000000000000000000000000aa")
	seller   = domain.Address("0x00000000000000000000000000000000000000s1")
	buyer    = domain.Address("0x00000000000000000000000000000000000000b1")
	operator = domain.Address("0x00000000000000000000000000000000000000e5")
	feeTo    = domain.Address("0x00000000000000000000000000000000000000f0")
	artist   = domain.Address("0x00000000000000000000000000000000000000c9")
)

type memListingRepo struct {
	seq   uint64
	items map[domain.ListingId]*listing.Listing
}

func newMemListingRepo() *memListingRepo {
	return &memListingRepo{items: map[domain.ListingId]*listing.Listing{}}
}

func (r *memListingRepo) NextId(_ bCtx.Ctx) (domain.ListingId, error) {
	r.seq++
	return domain.ListingId(r.seq), nil
}

func (r *memListingRepo) FindOne(_ bCtx.Ctx, id domain.ListingId) (*listing.Listing, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, query.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *memListingRepo) match(item *listing.Listing, options listing.FindAllOptions) bool {
	if options.Sold != nil && item.Sold != *options.Sold {
		return false
	}
	if options.Canceled != nil && item.Canceled != *options.Canceled {
		return false
	}
	if options.ClosingTimeGT != nil && !item.ClosingTime.After(*options.ClosingTimeGT) {
		return false
	}
	if options.Seller != nil && !item.Seller.Equals(*options.Seller) {
		return false
	}
	return true
}

func (r *memListingRepo) FindAll(c bCtx.Ctx, opts ...listing.FindAllOptionsFunc) ([]*listing.Listing, error) {
	options, err := listing.GetFindAllOptions(opts...)
	if err != nil {
		return nil, err
	}
	res := []*listing.Listing{}
	for _, item := range r.items {
		if r.match(item, options) {
			cp := *item
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Id < res[j].Id })
	if options.Offset != nil {
		if int(*options.Offset) >= len(res) {
			res = nil
		} else {
			res = res[*options.Offset:]
		}
	}
	if options.Limit != nil && *options.Limit > 0 && int(*options.Limit) < len(res) {
		res = res[:*options.Limit]
	}
	return res, nil
}

func (r *memListingRepo) Count(c bCtx.Ctx, opts ...listing.FindAllOptionsFunc) (int, error) {
	res, err := r.FindAll(c, opts...)
	if err != nil {
		return 0, err
	}
	return len(res), nil
}

func (r *memListingRepo) Insert(_ bCtx.Ctx, item *listing.Listing) error {
	item.LowerCase()
	cp := *item
	r.items[item.Id] = &cp
	return nil
}

func (r *memListingRepo) Update(_ bCtx.Ctx, id domain.ListingId, patchable listing.Patchable) error {
	item, ok := r.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if patchable.Price != nil {
		item.Price = *patchable.Price
	}
	if patchable.ClosingTime != nil {
		item.ClosingTime = *patchable.ClosingTime
	}
	if patchable.Sold != nil {
		item.Sold = *patchable.Sold
	}
	if patchable.Canceled != nil {
		item.Canceled = *patchable.Canceled
	}
	return nil
}

func (r *memListingRepo) MarkSold(_ bCtx.Ctx, id domain.ListingId, now time.Time) error {
	item, ok := r.items[id]
	if !ok || item.Sold || item.Canceled || !item.ClosingTime.After(now) {
		return domain.ErrListingNotActive
	}
	item.Sold = true
	return nil
}

type memFingerprintRepo struct {
	entries map[string]*listing.FingerprintEntry
}

func newMemFingerprintRepo() *memFingerprintRepo {
	return &memFingerprintRepo{entries: map[string]*listing.FingerprintEntry{}}
}

func (r *memFingerprintRepo) FindOne(_ bCtx.Ctx, fingerprint string) (*listing.FingerprintEntry, error) {
	entry, ok := r.entries[fingerprint]
	if !ok {
		return nil, query.ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

func (r *memFingerprintRepo) Upsert(_ bCtx.Ctx, entry *listing.FingerprintEntry) error {
	cp := *entry
	r.entries[entry.Fingerprint] = &cp
	return nil
}

type memActivityRepo struct {
	activities []*listing.Activity
}

func (r *memActivityRepo) Insert(_ bCtx.Ctx, activity *listing.Activity) error {
	cp := *activity
	r.activities = append(r.activities, &cp)
	return nil
}

func (r *memActivityRepo) FindAll(_ bCtx.Ctx, opts ...listing.ActivityFindAllOptionsFunc) ([]*listing.Activity, error) {
	options, err := listing.GetActivityFindAllOptions(opts...)
	if err != nil {
		return nil, err
	}
	res := []*listing.Activity{}
	for _, a := range r.activities {
		if options.ListingId != nil && a.ListingId != *options.ListingId {
			continue
		}
		if options.Kind != nil && a.Kind != *options.Kind {
			continue
		}
		res = append(res, a)
	}
	if options.Offset != nil {
		if int(*options.Offset) >= len(res) {
			res = nil
		} else {
			res = res[*options.Offset:]
		}
	}
	if options.Limit != nil && *options.Limit > 0 && int(*options.Limit) < len(res) {
		res = res[:*options.Limit]
	}
	return res, nil
}

func (r *memActivityRepo) last() *listing.Activity {
	if len(r.activities) == 0 {
		return nil
	}
	return r.activities[len(r.activities)-1]
}

type memSettlementRepo struct {
	items map[domain.ListingId]*listing.Settlement
}

func newMemSettlementRepo() *memSettlementRepo {
	return &memSettlementRepo{items: map[domain.ListingId]*listing.Settlement{}}
}

func (r *memSettlementRepo) FindOne(_ bCtx.Ctx, id domain.ListingId) (*listing.Settlement, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, query.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *memSettlementRepo) Insert(_ bCtx.Ctx, settlement *listing.Settlement) error {
	cp := *settlement
	r.items[settlement.ListingId] = &cp
	return nil
}

func (r *memSettlementRepo) Update(_ bCtx.Ctx, id domain.ListingId, patchable listing.SettlementPatchable) error {
	item, ok := r.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if patchable.RoyaltyPaid != nil {
		item.RoyaltyPaid = *patchable.RoyaltyPaid
	}
	if patchable.FeePaid != nil {
		item.FeePaid = *patchable.FeePaid
	}
	if patchable.SellerPaid != nil {
		item.SellerPaid = *patchable.SellerPaid
	}
	if patchable.AssetTransferred != nil {
		item.AssetTransferred = *patchable.AssetTransferred
	}
	if patchable.RoyaltyTxHash != nil {
		item.RoyaltyTxHash = *patchable.RoyaltyTxHash
	}
	if patchable.FeeTxHash != nil {
		item.FeeTxHash = *patchable.FeeTxHash
	}
	if patchable.SellerTxHash != nil {
		item.SellerTxHash = *patchable.SellerTxHash
	}
	if patchable.AssetTxHash != nil {
		item.AssetTxHash = *patchable.AssetTxHash
	}
	if patchable.Completed != nil {
		item.Completed = *patchable.Completed
	}
	return nil
}

func (r *memSettlementRepo) Remove(_ bCtx.Ctx, id domain.ListingId) error {
	if _, ok := r.items[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

type memPlatformRepo struct {
	settings platform.Settings
}

func (r *memPlatformRepo) FindOne(_ bCtx.Ctx, _ domain.ChainId) (*platform.Settings, error) {
	cp := r.settings
	return &cp, nil
}

func (r *memPlatformRepo) Upsert(_ bCtx.Ctx, settings *platform.Settings) error {
	r.settings = *settings
	return nil
}

func (r *memPlatformRepo) Update(_ bCtx.Ctx, _ domain.ChainId, patchable platform.Patchable) error {
	if patchable.FeeBps != nil {
		r.settings.FeeBps = *patchable.FeeBps
	}
	if patchable.FeeRecipient != nil {
		r.settings.FeeRecipient = *patchable.FeeRecipient
	}
	return nil
}

type fakeErc721 struct {
	supports721    bool
	owners         map[string]string
	approved       map[string]string
	approvedForAll map[string]bool
	transferErr    error
	transfers      []string
}

func newFakeErc721() *fakeErc721 {
	return &fakeErc721{
		supports721:    true,
		owners:         map[string]string{},
		approved:       map[string]string{},
		approvedForAll: map[string]bool{},
	}
}

func (f *fakeErc721) Supports721Interface(_ bCtx.Ctx, _ int32, _ string) (bool, error) {
	return f.supports721, nil
}

func (f *fakeErc721) OwnerOf(_ bCtx.Ctx, _ int32, _ string, tokenId *big.Int) (string, error) {
	return f.owners[tokenId.String()], nil
}

func (f *fakeErc721) GetApproved(_ bCtx.Ctx, _ int32, _ string, tokenId *big.Int) (string, error) {
	return f.approved[tokenId.String()], nil
}

func (f *fakeErc721) IsApprovedForAll(_ bCtx.Ctx, _ int32, _ string, owner string, op string) (bool, error) {
	return f.approvedForAll[owner+":"+op], nil
}

func (f *fakeErc721) SafeTransferFrom(_ bCtx.Ctx, _ int32, _ string, from string, to string, tokenId *big.Int) (string, error) {
	if f.transferErr != nil {
		return "", f.transferErr
	}
	f.owners[tokenId.String()] = to
	f.transfers = append(f.transfers, from+"->"+to+":"+tokenId.String())
	return "0xtx", nil
}

type fakeErc2981 struct {
	receiver string
	amount   *big.Int
	err      error
}

func (f *fakeErc2981) RoyaltyInfo(_ bCtx.Ctx, _ int32, _ string, _ *big.Int, _ *big.Int) (string, *big.Int, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	return f.receiver, f.amount, nil
}

type payment struct {
	to     domain.Address
	amount *big.Int
}

type fakePayout struct {
	payments []payment
	failAt   int
}

func (f *fakePayout) Transfer(_ bCtx.Ctx, _ domain.ChainId, to domain.Address, amount *big.Int) (domain.TxHash, error) {
	if f.failAt > 0 && len(f.payments)+1 == f.failAt {
		return "", errors.New("rpc unavailable")
	}
	f.payments = append(f.payments, payment{to: to, amount: new(big.Int).Set(amount)})
	return "0xtx", nil
}

func (f *fakePayout) total() *big.Int {
	sum := big.NewInt(0)
	for _, p := range f.payments {
		sum.Add(sum, p.amount)
	}
	return sum
}

type listingSuite struct {
	suite.Suite

	ctx          bCtx.Ctx
	now          time.Time
	listingRepo  *memListingRepo
	fingerprints *memFingerprintRepo
	activities   *memActivityRepo
	settlements  *memSettlementRepo
	platformRepo *memPlatformRepo
	erc721       *fakeErc721
	erc2981      *fakeErc2981
	payout       *fakePayout
	uc           listing.UseCase
}

func TestListingSuite(t *testing.T) {
	suite.Run(t, new(listingSuite))
}

func (s *listingSuite) SetupTest() {
	s.ctx = bCtx.Background()
	s.now = time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return s.now }

	s.listingRepo = newMemListingRepo()
	s.fingerprints = newMemFingerprintRepo()
	s.activities = &memActivityRepo{}
	s.settlements = newMemSettlementRepo()
	s.platformRepo = &memPlatformRepo{settings: platform.Settings{
		ChainId:      chainId,
		FeeBps:       1000,
		FeeRecipient: feeTo,
	}}
	s.erc721 = newFakeErc721()
	s.erc721.owners["7"] = string(seller)
	s.erc721.approvedForAll[string(seller)+":"+string(operator)] = true
	s.erc2981 = &fakeErc2981{err: errors.New("execution reverted")}
	s.payout = &fakePayout{}

	s.SetupUseCase()
}

func (s *listingSuite) TearDownTest() {
	timeNow = time.Now
}

func (s *listingSuite) createListing(price string) domain.ListingId {
	id, err := s.uc.Create(s.ctx, listing.CreateReq{
		ChainId:       chainId,
		AssetContract: asset,
		TokenId:       "7",
		Price:         price,
		Duration:      time.Hour,
	}, seller)
	s.Require().NoError(err)
	return id
}

func (s *listingSuite) TestCreate() {
	id := s.createListing("100")

	item, err := s.uc.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("100", item.Price)
	s.Equal(seller.ToLower(), item.Seller)
	s.Equal(s.now, item.StartTime)
	s.Equal(s.now.Add(time.Hour), item.ClosingTime)
	s.Equal(listing.StatusActive, item.StatusAt(s.now))

	s.Require().NotNil(s.activities.last())
	s.Equal(listing.ActivityListingCreated, s.activities.last().Kind)
}

func (s *listingSuite) TestCreateIdsAreMonotonic() {
	first := s.createListing("100")
	s.Require().NoError(s.uc.Cancel(s.ctx, first, seller))
	second := s.createListing("100")
	s.Greater(uint64(second), uint64(first))
}

func (s *listingSuite) TestCreateRejectsBadPrice() {
	for _, price := range []string{"0", "-5", "1.5", "abc", ""} {
		_, err := s.uc.Create(s.ctx, listing.CreateReq{
			ChainId:       chainId,
			AssetContract: asset,
			TokenId:       "7",
			Price:         price,
			Duration:      time.Hour,
		}, seller)
		s.Error(err, "price %q", price)
	}
}

func (s *listingSuite) TestCreateRejectsBadChainId() {
	_, err := s.uc.Create(s.ctx, listing.CreateReq{
		ChainId:       0,
		AssetContract: asset,
		TokenId:       "7",
		Price:         "100",
		Duration:      time.Hour,
	}, seller)
	s.ErrorIs(err, domain.ErrInvalidChainId)
}

func (s *listingSuite) TestCreateRejectsNonPositiveDuration() {
	_, err := s.uc.Create(s.ctx, listing.CreateReq{
		ChainId:       chainId,
		AssetContract: asset,
		TokenId:       "7",
		Price:         "100",
		Duration:      0,
	}, seller)
	s.ErrorIs(err, domain.ErrInvalidClosingTime)
}

func (s *listingSuite) TestCreateRejectsNonErc721() {
	s.erc721.supports721 = false
	_, err := s.uc.Create(s.ctx, listing.CreateReq{
		ChainId:       chainId,
		AssetContract: asset,
		TokenId:       "7",
		Price:         "100",
		Duration:      time.Hour,
	}, seller)
	s.ErrorIs(err, domain.ErrNotErc721)
}

func (s *listingSuite) TestCreateRejectsNonOwner() {
	_, err := s.uc.Create(s.ctx, listing.CreateReq{
		ChainId:       chainId,
		AssetContract: asset,
		TokenId:       "7",
		Price:         "100",
		Duration:      time.Hour,
	}, buyer)
	s.ErrorIs(err, domain.ErrNotTokenOwner)
}

func (s *listingSuite) TestCreateRejectsMissingApproval() {
	s.erc721.approvedForAll = map[string]bool{}
	_, err := s.uc.Create(s.ctx, listing.CreateReq{
		ChainId:       chainId,
		AssetContract: asset,
		TokenId:       "7",
		Price:         "100",
		Duration:      time.Hour,
	}, seller)
	s.ErrorIs(err, domain.ErrMarketplaceNotApproved)
}

func (s *listingSuite) TestCreateAcceptsSingleTokenApproval() {
	s.erc721.approvedForAll = map[string]bool{}
	s.erc721.approved["7"] = string(operator)
	s.createListing("100")
}

func (s *listingSuite) TestCreateRejectsDuplicateActiveListing() {
	s.createListing("100")
	_, err := s.uc.Create(s.ctx, listing.CreateReq{
		ChainId:       chainId,
		AssetContract: asset,
		TokenId:       "7",
		Price:         "200",
		Duration:      time.Hour,
	}, seller)
	s.ErrorIs(err, domain.ErrListingAlreadyActive)
}

func (s *listingSuite) TestCreateAllowsRelistAfterCancel() {
	id := s.createListing("100")
	s.Require().NoError(s.uc.Cancel(s.ctx, id, seller))
	s.createListing("200")
}

func (s *listingSuite) TestCreateAllowsRelistAfterExpiry() {
	s.createListing("100")
	s.now = s.now.Add(2 * time.Hour)
	s.createListing("200")
}

func (s *listingSuite) TestUpdatePrice() {
	id := s.createListing("100")
	s.Require().NoError(s.uc.UpdatePrice(s.ctx, id, "250", seller))

	item, err := s.uc.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("250", item.Price)
	s.Equal(listing.ActivityPriceUpdated, s.activities.last().Kind)
}

func (s *listingSuite) TestUpdatePriceOnlySeller() {
	id := s.createListing("100")
	s.ErrorIs(s.uc.UpdatePrice(s.ctx, id, "250", buyer), domain.ErrOnlySeller)
}

func (s *listingSuite) TestUpdatePriceRequiresActive() {
	id := s.createListing("100")
	s.Require().NoError(s.uc.Cancel(s.ctx, id, seller))
	s.ErrorIs(s.uc.UpdatePrice(s.ctx, id, "250", seller), domain.ErrListingNotActive)
}

func (s *listingSuite) TestUpdatePriceExpired() {
	id := s.createListing("100")
	s.now = s.now.Add(2 * time.Hour)
	s.ErrorIs(s.uc.UpdatePrice(s.ctx, id, "250", seller), domain.ErrListingNotActive)
}

func (s *listingSuite) TestUpdatePriceNotFound() {
	s.ErrorIs(s.uc.UpdatePrice(s.ctx, 42, "250", seller), domain.ErrNotFound)
}

func (s *listingSuite) TestUpdateClosingTime() {
	id := s.createListing("100")
	later := s.now.Add(48 * time.Hour)
	s.Require().NoError(s.uc.UpdateClosingTime(s.ctx, id, later, seller))

	item, err := s.uc.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(later, item.ClosingTime)
}

func (s *listingSuite) TestUpdateClosingTimeRejectsPast() {
	id := s.createListing("100")
	s.ErrorIs(s.uc.UpdateClosingTime(s.ctx, id, s.now.Add(-time.Minute), seller), domain.ErrInvalidClosingTime)
	s.ErrorIs(s.uc.UpdateClosingTime(s.ctx, id, s.now, seller), domain.ErrInvalidClosingTime)
}

func (s *listingSuite) TestCancel() {
	id := s.createListing("100")
	s.Require().NoError(s.uc.Cancel(s.ctx, id, seller))

	item, err := s.uc.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(listing.StatusCanceled, item.StatusAt(s.now))
}

func (s *listingSuite) TestCancelTwice() {
	id := s.createListing("100")
	s.Require().NoError(s.uc.Cancel(s.ctx, id, seller))
	s.ErrorIs(s.uc.Cancel(s.ctx, id, seller), domain.ErrListingNotActive)
}

func (s *listingSuite) TestCancelOnlySeller() {
	id := s.createListing("100")
	s.ErrorIs(s.uc.Cancel(s.ctx, id, buyer), domain.ErrOnlySeller)
}

func (s *listingSuite) TestBuySplitsPayment() {
	id := s.createListing("100")
	s.Require().NoError(s.uc.Buy(s.ctx, id, "100", buyer))

	// 10% platform fee, no royalty
	s.Require().Len(s.payout.payments, 2)
	s.Equal(feeTo, s.payout.payments[0].to)
	s.Equal("10", s.payout.payments[0].amount.String())
	s.Equal(seller.ToLower(), s.payout.payments[1].to)
	s.Equal("90", s.payout.payments[1].amount.String())
	s.Equal("100", s.payout.total().String())

	s.Equal(string(buyer), s.erc721.owners["7"])

	item, err := s.uc.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(listing.StatusSold, item.StatusAt(s.now))
	s.Equal(listing.ActivityPurchaseCompleted, s.activities.last().Kind)
}

func (s *listingSuite) TestBuyPaysRoyalty() {
	s.erc2981 = &fakeErc2981{receiver: string(artist), amount: big.NewInt(5)}
	s.SetupUseCase()

	id := s.createListing("100")
	s.Require().NoError(s.uc.Buy(s.ctx, id, "100", buyer))

	s.Require().Len(s.payout.payments, 3)
	s.Equal(artist.ToLower(), s.payout.payments[0].to)
	s.Equal("5", s.payout.payments[0].amount.String())
	s.Equal("10", s.payout.payments[1].amount.String())
	s.Equal("85", s.payout.payments[2].amount.String())
	s.Equal("100", s.payout.total().String())
}

// SetupUseCase rebuilds the usecase after a collaborator swap
func (s *listingSuite) SetupUseCase() {
	s.uc = New(&ListingUseCaseCfg{
		ListingRepo:     s.listingRepo,
		FingerprintRepo: s.fingerprints,
		ActivityRepo:    s.activities,
		SettlementRepo:  s.settlements,
		PlatformRepo:    s.platformRepo,
		Erc721:          s.erc721,
		Erc2981:         s.erc2981,
		Payout:          s.payout,
		Operator:        operator,
	})
}

func (s *listingSuite) TestBuyFeeMathTruncates() {
	s.platformRepo.settings.FeeBps = 333
	id := s.createListing("1000")
	s.Require().NoError(s.uc.Buy(s.ctx, id, "1000", buyer))

	// 1000 * 333 / 10000 = 33.3 truncated to 33
	s.Equal("33", s.payout.payments[0].amount.String())
	s.Equal("967", s.payout.payments[1].amount.String())
}

func (s *listingSuite) TestBuyFullFeeBps() {
	s.platformRepo.settings.FeeBps = domain.MaxFeeBps
	id := s.createListing("100")
	s.Require().NoError(s.uc.Buy(s.ctx, id, "100", buyer))

	// the entire payment goes to the platform, seller proceeds collapse to zero
	s.Require().Len(s.payout.payments, 1)
	s.Equal(feeTo, s.payout.payments[0].to)
	s.Equal("100", s.payout.payments[0].amount.String())
}

func (s *listingSuite) TestBuyRejectsWrongPayment() {
	id := s.createListing("100")
	s.ErrorIs(s.uc.Buy(s.ctx, id, "99", buyer), domain.ErrIncorrectPurchaseAmount)
	s.ErrorIs(s.uc.Buy(s.ctx, id, "101", buyer), domain.ErrIncorrectPurchaseAmount)
}

func (s *listingSuite) TestBuyRejectsWhenFeesExceedPrice() {
	s.erc2981 = &fakeErc2981{receiver: string(artist), amount: big.NewInt(95)}
	s.SetupUseCase()

	id := s.createListing("100")
	s.ErrorIs(s.uc.Buy(s.ctx, id, "100", buyer), domain.ErrFeesExceedPrice)

	item, err := s.uc.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(listing.StatusActive, item.StatusAt(s.now))
	s.Empty(s.payout.payments)
	s.Empty(s.settlements.items)
}

func (s *listingSuite) TestBuyRequiresActive() {
	id := s.createListing("100")
	s.Require().NoError(s.uc.Cancel(s.ctx, id, seller))
	s.ErrorIs(s.uc.Buy(s.ctx, id, "100", buyer), domain.ErrListingNotActive)
}

func (s *listingSuite) TestBuyExpired() {
	id := s.createListing("100")
	s.now = s.now.Add(2 * time.Hour)
	s.ErrorIs(s.uc.Buy(s.ctx, id, "100", buyer), domain.ErrListingNotActive)
}

func (s *listingSuite) TestBuyTwice() {
	id := s.createListing("100")
	s.Require().NoError(s.uc.Buy(s.ctx, id, "100", buyer))
	s.ErrorIs(s.uc.Buy(s.ctx, id, "100", buyer), domain.ErrListingNotActive)
}

func (s *listingSuite) TestBuyRevalidatesOwnership() {
	id := s.createListing("100")
	// seller moved the asset after listing
	s.erc721.owners["7"] = string(artist)
	s.ErrorIs(s.uc.Buy(s.ctx, id, "100", buyer), domain.ErrNotTokenOwner)
}

func (s *listingSuite) TestBuyRevalidatesApproval() {
	id := s.createListing("100")
	s.erc721.approvedForAll = map[string]bool{}
	s.ErrorIs(s.uc.Buy(s.ctx, id, "100", buyer), domain.ErrMarketplaceNotApproved)
}

func (s *listingSuite) TestBuyUnwindsWhenNothingDisbursed() {
	// the first transfer attempted is the platform fee; nothing has moved
	// yet, so the purchase unwinds completely
	s.payout.failAt = 1
	id := s.createListing("100")
	s.ErrorIs(s.uc.Buy(s.ctx, id, "100", buyer), domain.ErrTransferFailed)

	item, err := s.uc.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(listing.StatusActive, item.StatusAt(s.now))
	s.Empty(s.payout.payments)
	s.Empty(s.settlements.items)

	s.payout.failAt = 0
	s.Require().NoError(s.uc.Buy(s.ctx, id, "100", buyer))
	s.Equal("100", s.payout.total().String())
}

func (s *listingSuite) TestBuyKeepsSoldAfterPartialDisbursement() {
	// fee leg executes, seller leg fails; the fee cannot be clawed back so
	// the listing must not return to active
	s.payout.failAt = 2
	id := s.createListing("100")
	s.ErrorIs(s.uc.Buy(s.ctx, id, "100", buyer), domain.ErrTransferFailed)

	item, err := s.uc.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(listing.StatusSold, item.StatusAt(s.now))

	ledger, err := s.settlements.FindOne(s.ctx, id)
	s.Require().NoError(err)
	s.True(ledger.FeePaid)
	s.False(ledger.SellerPaid)
	s.False(ledger.Completed)
}

func (s *listingSuite) TestBuyRetryAfterPartialDisbursementConservesPayment() {
	s.payout.failAt = 2
	id := s.createListing("100")
	s.ErrorIs(s.uc.Buy(s.ctx, id, "100", buyer), domain.ErrTransferFailed)
	s.Equal("10", s.payout.total().String())

	// the retry resumes the ledger: only the open seller leg and the asset
	// transfer run, the fee is not paid a second time
	s.payout.failAt = 0
	s.Require().NoError(s.uc.Buy(s.ctx, id, "100", buyer))

	s.Equal("100", s.payout.total().String())
	s.Equal(string(buyer), s.erc721.owners["7"])
	s.Equal(listing.ActivityPurchaseCompleted, s.activities.last().Kind)

	ledger, err := s.settlements.FindOne(s.ctx, id)
	s.Require().NoError(err)
	s.True(ledger.Completed)
}

func (s *listingSuite) TestBuyKeepsSoldAfterAssetTransferFailure() {
	s.erc721.transferErr = errors.New("execution reverted")
	id := s.createListing("100")
	s.ErrorIs(s.uc.Buy(s.ctx, id, "100", buyer), domain.ErrTransferFailed)

	item, err := s.uc.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(listing.StatusSold, item.StatusAt(s.now))
	s.Equal("100", s.payout.total().String())

	// all payout legs are done; the retry only redoes the asset transfer
	s.erc721.transferErr = nil
	s.Require().NoError(s.uc.Buy(s.ctx, id, "100", buyer))
	s.Equal("100", s.payout.total().String())
	s.Equal(string(buyer), s.erc721.owners["7"])
}

func (s *listingSuite) TestBuyResumeOnlyOriginalBuyer() {
	s.payout.failAt = 2
	id := s.createListing("100")
	s.ErrorIs(s.uc.Buy(s.ctx, id, "100", buyer), domain.ErrTransferFailed)

	s.payout.failAt = 0
	s.ErrorIs(s.uc.Buy(s.ctx, id, "100", artist), domain.ErrListingNotActive)
	s.Require().NoError(s.uc.Buy(s.ctx, id, "100", buyer))
}

func (s *listingSuite) TestBuyResumeRejectsDifferentPayment() {
	s.payout.failAt = 2
	id := s.createListing("100")
	s.ErrorIs(s.uc.Buy(s.ctx, id, "100", buyer), domain.ErrTransferFailed)

	s.payout.failAt = 0
	s.ErrorIs(s.uc.Buy(s.ctx, id, "50", buyer), domain.ErrIncorrectPurchaseAmount)
	s.Require().NoError(s.uc.Buy(s.ctx, id, "100", buyer))
}

func (s *listingSuite) TestGetNotFound() {
	_, err := s.uc.Get(s.ctx, 42)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *listingSuite) TestGetAllActive() {
	first := s.createListing("100")
	s.Require().NoError(s.uc.Cancel(s.ctx, first, seller))

	s.erc721.owners["8"] = string(seller)
	_, err := s.uc.Create(s.ctx, listing.CreateReq{
		ChainId:       chainId,
		AssetContract: asset,
		TokenId:       "8",
		Price:         "100",
		Duration:      time.Hour,
	}, seller)
	s.Require().NoError(err)

	second := s.createListing("200")

	active, err := s.uc.GetAllActive(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(active, 2)
	// ascending by id, canceled listing excluded
	s.Less(uint64(active[0].Id), uint64(active[1].Id))
	s.Equal(second, active[1].Id)

	all, count, err := s.uc.GetAll(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Len(all, 3)
	s.Equal(3, count)
}

func (s *listingSuite) TestGetAllPaginates() {
	s.createListing("100")
	s.erc721.owners["8"] = string(seller)
	_, err := s.uc.Create(s.ctx, listing.CreateReq{
		ChainId:       chainId,
		AssetContract: asset,
		TokenId:       "8",
		Price:         "100",
		Duration:      time.Hour,
	}, seller)
	s.Require().NoError(err)
	s.erc721.owners["9"] = string(seller)
	_, err = s.uc.Create(s.ctx, listing.CreateReq{
		ChainId:       chainId,
		AssetContract: asset,
		TokenId:       "9",
		Price:         "100",
		Duration:      time.Hour,
	}, seller)
	s.Require().NoError(err)

	page, count, err := s.uc.GetAll(s.ctx, 0, 2)
	s.Require().NoError(err)
	s.Len(page, 2)
	s.Equal(3, count)

	rest, count, err := s.uc.GetAll(s.ctx, 2, 2)
	s.Require().NoError(err)
	s.Len(rest, 1)
	s.Equal(3, count)
	s.Greater(uint64(rest[0].Id), uint64(page[1].Id))
}

func (s *listingSuite) TestGetActivities() {
	id := s.createListing("100")
	s.Require().NoError(s.uc.UpdatePrice(s.ctx, id, "250", seller))
	s.Require().NoError(s.uc.Buy(s.ctx, id, "250", buyer))

	acts, err := s.uc.GetActivities(s.ctx, id, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(acts, 3)

	page, err := s.uc.GetActivities(s.ctx, id, 0, 2)
	s.Require().NoError(err)
	s.Len(page, 2)

	_, err = s.uc.GetActivities(s.ctx, 42, 0, 0)
	s.ErrorIs(err, domain.ErrNotFound)
}
