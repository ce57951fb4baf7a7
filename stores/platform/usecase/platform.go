package usecase

import (
	"strconv"
	"time"

	"github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/base/log"
	"github.com/tokenmart/goapi/domain"
	"github.com/tokenmart/goapi/domain/listing"
	"github.com/tokenmart/goapi/domain/platform"
	"github.com/tokenmart/goapi/service/query"
)

var timeNow = time.Now

type PlatformUseCaseCfg struct {
	PlatformRepo platform.Repo
	ActivityRepo listing.ActivityRepo
}

type impl struct {
	platformRepo platform.Repo
	activityRepo listing.ActivityRepo
}

func New(cfg *PlatformUseCaseCfg) platform.UseCase {
	return &impl{
		platformRepo: cfg.PlatformRepo,
		activityRepo: cfg.ActivityRepo,
	}
}

func (im *impl) Get(ctx ctx.Ctx, chainId domain.ChainId) (*platform.Settings, error) {
	settings, err := im.platformRepo.FindOne(ctx, chainId)
	if err == query.ErrNotFound {
		return nil, domain.ErrNotFound
	} else if err != nil {
		ctx.WithFields(log.Fields{
			"err":     err,
			"chainId": chainId,
		}).Error("failed to platformRepo.FindOne")
		return nil, err
	}
	return settings, nil
}

func (im *impl) SetFeeBps(ctx ctx.Ctx, chainId domain.ChainId, bps int64, actor domain.Address) error {
	if bps < 0 || bps > domain.MaxFeeBps {
		return domain.ErrInvalidFeeBps
	}

	now := timeNow()
	if err := im.platformRepo.Update(ctx, chainId, platform.Patchable{
		FeeBps:    &bps,
		UpdatedAt: &now,
	}); err != nil {
		ctx.WithFields(log.Fields{
			"err":     err,
			"chainId": chainId,
			"bps":     bps,
		}).Error("failed to platformRepo.Update")
		return err
	}

	im.emit(ctx, &listing.Activity{
		ChainId: chainId,
		Kind:    listing.ActivityFeeBpsUpdated,
		Account: actor.ToLower(),
		Value:   strconv.FormatInt(bps, 10),
		Time:    now,
	})

	return nil
}

func (im *impl) SetFeeRecipient(ctx ctx.Ctx, chainId domain.ChainId, recipient domain.Address, actor domain.Address) error {
	if recipient.IsEmpty() {
		return domain.ErrInvalidAddress
	}

	now := timeNow()
	lowered := recipient.ToLower()
	if err := im.platformRepo.Update(ctx, chainId, platform.Patchable{
		FeeRecipient: &lowered,
		UpdatedAt:    &now,
	}); err != nil {
		ctx.WithFields(log.Fields{
			"err":       err,
			"chainId":   chainId,
			"recipient": recipient,
		}).Error("failed to platformRepo.Update")
		return err
	}

	im.emit(ctx, &listing.Activity{
		ChainId: chainId,
		Kind:    listing.ActivityFeeRecipientUpdated,
		Account: actor.ToLower(),
		Value:   string(lowered),
		Time:    now,
	})

	return nil
}

func (im *impl) emit(ctx ctx.Ctx, activity *listing.Activity) {
	if err := im.activityRepo.Insert(ctx, activity); err != nil {
		ctx.WithFields(log.Fields{
			"err":  err,
			"kind": activity.Kind,
		}).Warn("failed to record activity")
	}
}
