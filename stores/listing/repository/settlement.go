package repository

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/base/database/mongoclient"
	"github.com/tokenmart/goapi/base/log"
	"github.com/tokenmart/goapi/domain"
	"github.com/tokenmart/goapi/domain/listing"
	"github.com/tokenmart/goapi/service/query"
)

type settlementRepo struct {
	q query.Mongo
}

func NewSettlementRepo(q query.Mongo) listing.SettlementRepo {
	return &settlementRepo{q}
}

func (im *settlementRepo) FindOne(ctx ctx.Ctx, id domain.ListingId) (*listing.Settlement, error) {
	res := listing.Settlement{}
	if err := im.q.FindOne(ctx, domain.TableListingSettlements, bson.M{"listingId": id}, &res); err != nil {
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

func (im *settlementRepo) Insert(ctx ctx.Ctx, settlement *listing.Settlement) error {
	if err := im.q.Insert(ctx, domain.TableListingSettlements, settlement); err != nil {
		ctx.WithFields(log.Fields{
			"err": err,
			"id":  settlement.ListingId,
		}).Error("failed to q.Insert")
		return err
	}
	return nil
}

func (im *settlementRepo) Update(ctx ctx.Ctx, id domain.ListingId, patchable listing.SettlementPatchable) error {
	updater, err := mongoclient.MakeBsonM(patchable)
	if err != nil {
		ctx.WithFields(log.Fields{
			"err":       err,
			"patchable": patchable,
		}).Error("failed to mongoclient.MakeBsonM")
		return err
	}

	if err := im.q.Patch(ctx, domain.TableListingSettlements, bson.M{"listingId": id}, updater); err != nil {
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

func (im *settlementRepo) Remove(ctx ctx.Ctx, id domain.ListingId) error {
	if err := im.q.Remove(ctx, domain.TableListingSettlements, bson.M{"listingId": id}); err != nil {
		if err == query.ErrNotFound {
			return domain.ErrNotFound
		}
		ctx.WithFields(log.Fields{
			"err": err,
			"id":  id,
		}).Error("failed to q.Remove")
		return err
	}
	return nil
}
