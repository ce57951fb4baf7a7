package repository

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/base/database/mongoclient"
	"github.com/tokenmart/goapi/base/log"
	"github.com/tokenmart/goapi/domain"
	"github.com/tokenmart/goapi/domain/platform"
	"github.com/tokenmart/goapi/service/query"
)

type impl struct {
	q query.Mongo
}

func NewPlatformRepo(q query.Mongo) platform.Repo {
	return &impl{q}
}

func (im *impl) FindOne(ctx ctx.Ctx, chainId domain.ChainId) (*platform.Settings, error) {
	res := platform.Settings{}
	if err := im.q.FindOne(ctx, domain.TablePlatformSettings, bson.M{"chainId": chainId}, &res); err != nil {
		if err != query.ErrNotFound {
			ctx.WithFields(log.Fields{
				"err":     err,
				"chainId": chainId,
			}).Error("failed to q.FindOne")
		}
		return nil, err
	}
	return &res, nil
}

func (im *impl) Upsert(ctx ctx.Ctx, settings *platform.Settings) error {
	selector := bson.M{"chainId": settings.ChainId}
	if err := im.q.Upsert(ctx, domain.TablePlatformSettings, selector, settings); err != nil {
		ctx.WithFields(log.Fields{
			"err":      err,
			"settings": *settings,
		}).Error("failed to q.Upsert")
		return err
	}
	return nil
}

func (im *impl) Update(ctx ctx.Ctx, chainId domain.ChainId, patchable platform.Patchable) error {
	updater, err := mongoclient.MakeBsonM(patchable)
	if err != nil {
		ctx.WithFields(log.Fields{
			"err":       err,
			"patchable": patchable,
		}).Error("failed to mongoclient.MakeBsonM")
		return err
	}

	if err := im.q.Patch(ctx, domain.TablePlatformSettings, bson.M{"chainId": chainId}, updater); err != nil {
		if err == query.ErrNotFound {
			return domain.ErrNotFound
		}
		ctx.WithFields(log.Fields{
			"err":     err,
			"chainId": chainId,
		}).Error("failed to q.Patch")
		return err
	}

	return nil
}
