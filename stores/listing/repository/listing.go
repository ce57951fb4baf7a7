package repository

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/base/database/mongoclient"
	"github.com/tokenmart/goapi/base/log"
	"github.com/tokenmart/goapi/domain"
	"github.com/tokenmart/goapi/domain/listing"
	"github.com/tokenmart/goapi/service/query"
)

const listingCounterName = "listings"

type counter struct {
	Name string `bson:"name"`
	Seq  uint64 `bson:"seq"`
}

type listingRepo struct {
	q query.Mongo
}

func NewListingRepo(q query.Mongo) listing.Repo {
	return &listingRepo{q}
}

func (im *listingRepo) makeQuery(options listing.FindAllOptions) (bson.M, error) {
	query := bson.M{}

	if options.ChainId != nil {
		query["chainId"] = *options.ChainId
	}

	if options.AssetContract != nil {
		query["assetContract"] = options.AssetContract.ToLower()
	}

	if options.TokenId != nil {
		query["tokenID"] = *options.TokenId
	}

	if options.Seller != nil {
		query["seller"] = options.Seller.ToLower()
	}

	if options.Sold != nil {
		query["sold"] = *options.Sold
	}

	if options.Canceled != nil {
		query["canceled"] = *options.Canceled
	}

	if options.ClosingTimeGT != nil {
		query["closingTime"] = bson.M{"$gt": *options.ClosingTimeGT}
	}

	return query, nil
}

func (im *listingRepo) NextId(ctx ctx.Ctx) (domain.ListingId, error) {
	res := counter{}
	selector := bson.M{"name": listingCounterName}
	if err := im.q.Increment(ctx, domain.TableCounters, selector, &res, "seq", 1); err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
		}).Error("failed to q.Increment")
		return 0, err
	}
	return domain.ListingId(res.Seq), nil
}

func (im *listingRepo) FindOne(ctx ctx.Ctx, id domain.ListingId) (*listing.Listing, error) {
	res := listing.Listing{}
	if err := im.q.FindOne(ctx, domain.TableListings, bson.M{"id": id}, &res); err != nil {
		if err != query.ErrNotFound {
			ctx.WithFields(log.Fields{
				"err": err,
				"id":  id,
			}).Error("failed to q.FindOne")
		}
		return nil, err
	}
	return &res, nil
}

func (im *listingRepo) FindAll(ctx ctx.Ctx, opts ...listing.FindAllOptionsFunc) ([]*listing.Listing, error) {
	options, err := listing.GetFindAllOptions(opts...)
	if err != nil {
		return nil, err
	}
	query, err := im.makeQuery(options)
	if err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
		}).Error("im.makeQuery")
		return nil, err
	}

	offset := 0
	if options.Offset != nil {
		offset = int(*options.Offset)
	}

	limit := 0
	if options.Limit != nil {
		limit = int(*options.Limit)
	}

	sort := "id"
	if options.Sort != nil {
		sort = *options.Sort
	}

	res := []*listing.Listing{}
	if err := im.q.Search(ctx, domain.TableListings, offset, limit, sort, query, &res); err != nil {
		ctx.WithFields(log.Fields{
			"err":   err,
			"query": query,
		}).Error("failed to q.Search")
		return nil, err
	}

	return res, nil
}

func (im *listingRepo) Count(ctx ctx.Ctx, opts ...listing.FindAllOptionsFunc) (int, error) {
	options, err := listing.GetFindAllOptions(opts...)
	if err != nil {
		return 0, err
	}
	query, err := im.makeQuery(options)
	if err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
		}).Error("im.makeQuery")
		return 0, err
	}

	count, err := im.q.Count(ctx, domain.TableListings, query)
	if err != nil {
		ctx.WithFields(log.Fields{
			"err":   err,
			"query": query,
		}).Error("failed to q.Count")
		return 0, err
	}

	return count, nil
}

func (im *listingRepo) Insert(ctx ctx.Ctx, item *listing.Listing) error {
	item.LowerCase()
	if err := im.q.Insert(ctx, domain.TableListings, item); err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
			"id":  item.Id,
		}).Error("failed to q.Insert")
		return err
	}
	return nil
}

func (im *listingRepo) Update(ctx ctx.Ctx, id domain.ListingId, patchable listing.Patchable) error {
	updater, err := mongoclient.MakeBsonM(patchable)
	if err != nil {
		ctx.WithFields(log.Fields{
			"err":       err,
			"patchable": patchable,
		}).Error("failed to mongoclient.MakeBsonM")
		return err
	}

	if err := im.q.Patch(ctx, domain.TableListings, bson.M{"id": id}, updater); err != nil {
		if err == query.ErrNotFound {
			return domain.ErrNotFound
		}
		ctx.WithFields(log.Fields{
			"err":     err,
			"id":      id,
			"updater": updater,
		}).Error("failed to q.Patch")
		return err
	}

	return nil
}

// MarkSold flips sold atomically. The selector only matches a record that is
// still active at `now`, so concurrent purchases race on a single conditional
// update and exactly one wins.
func (im *listingRepo) MarkSold(ctx ctx.Ctx, id domain.ListingId, now time.Time) error {
	selector := bson.M{
		"id":          id,
		"sold":        false,
		"canceled":    false,
		"closingTime": bson.M{"$gt": now},
	}
	update := bson.M{"$set": bson.M{"sold": true}}
	if err := im.q.CustomPatch(ctx, domain.TableListings, selector, update, false); err != nil {
		if err == query.ErrNotFound {
			return domain.ErrListingNotActive
		}
		ctx.WithFields(log.Fields{
			"err": err,
			"id":  id,
		}).Error("failed to q.CustomPatch")
		return err
	}
	return nil
}
