package repository

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/base/log"
	"github.com/tokenmart/goapi/domain"
	"github.com/tokenmart/goapi/domain/listing"
	"github.com/tokenmart/goapi/service/query"
)

type fingerprintRepo struct {
	q query.Mongo
}

func NewFingerprintRepo(q query.Mongo) listing.FingerprintRepo {
	return &fingerprintRepo{q}
}

func (im *fingerprintRepo) FindOne(ctx ctx.Ctx, fingerprint string) (*listing.FingerprintEntry, error) {
	res := listing.FingerprintEntry{}
	if err := im.q.FindOne(ctx, domain.TableListingFingerprints, bson.M{"fingerprint": fingerprint}, &res); err != nil {
		if err != query.ErrNotFound {
			ctx.WithFields(log.Fields{
				"err":         err,
				"fingerprint": fingerprint,
			}).Error("failed to q.FindOne")
		}
		return nil, err
	}
	return &res, nil
}

func (im *fingerprintRepo) Upsert(ctx ctx.Ctx, entry *listing.FingerprintEntry) error {
	selector := bson.M{"fingerprint": entry.Fingerprint}
	if err := im.q.Upsert(ctx, domain.TableListingFingerprints, selector, entry); err != nil {
		ctx.WithFields(log.Fields{
			"err":   err,
			"entry": *entry,
		}).Error("failed to q.Upsert")
		return err
	}
	return nil
}
