package repository

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/base/log"
	"github.com/tokenmart/goapi/domain"
	"github.com/tokenmart/goapi/domain/listing"
	"github.com/tokenmart/goapi/service/query"
)

type activityRepo struct {
	q query.Mongo
}

func NewActivityRepo(q query.Mongo) listing.ActivityRepo {
	return &activityRepo{q}
}

func (im *activityRepo) makeQuery(options listing.ActivityFindAllOptions) bson.M {
	query := bson.M{}

	if options.ChainId != nil {
		query["chainId"] = *options.ChainId
	}

	if options.ListingId != nil {
		query["listingId"] = *options.ListingId
	}

	if options.Kind != nil {
		query["kind"] = *options.Kind
	}

	if options.Account != nil {
		query["account"] = options.Account.ToLower()
	}

	return query
}

func (im *activityRepo) Insert(ctx ctx.Ctx, activity *listing.Activity) error {
	if err := im.q.Insert(ctx, domain.TableActivities, activity); err != nil {
		ctx.WithFields(log.Fields{
			"err":      err,
			"activity": *activity,
		}).Error("failed to q.Insert")
		return err
	}
	return nil
}

func (im *activityRepo) FindAll(ctx ctx.Ctx, opts ...listing.ActivityFindAllOptionsFunc) ([]*listing.Activity, error) {
	options, err := listing.GetActivityFindAllOptions(opts...)
	if err != nil {
		return nil, err
	}
	query := im.makeQuery(options)

	offset := 0
	if options.Offset != nil {
		offset = int(*options.Offset)
	}

	limit := 0
	if options.Limit != nil {
		limit = int(*options.Limit)
	}

	res := []*listing.Activity{}
	if err := im.q.Search(ctx, domain.TableActivities, offset, limit, "-time", query, &res); err != nil {
		ctx.WithFields(log.Fields{
			"err":   err,
			"query": query,
		}).Error("failed to q.Search")
		return nil, err
	}

	return res, nil
}
