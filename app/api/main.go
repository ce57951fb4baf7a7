package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/viper"

	"github.com/go-playground/validator/v10"
	"github.com/tokenmart/goapi/base/ctx"
	"github.com/tokenmart/goapi/base/database/mongoclient"
	"github.com/tokenmart/goapi/base/log"
	bValidator "github.com/tokenmart/goapi/base/validator"
	"github.com/tokenmart/goapi/domain"
	"github.com/tokenmart/goapi/domain/platform"
	mmiddleware "github.com/tokenmart/goapi/middleware"
	"github.com/tokenmart/goapi/service/chain"
	"github.com/tokenmart/goapi/service/chain/contract"
	"github.com/tokenmart/goapi/service/payout"
	"github.com/tokenmart/goapi/service/query"
	auth_delivery "github.com/tokenmart/goapi/stores/auth/delivery/http"
	auth_middleware "github.com/tokenmart/goapi/stores/auth/delivery/http/middleware"
	auth_usecase "github.com/tokenmart/goapi/stores/auth/usecase"
	hc_delivery "github.com/tokenmart/goapi/stores/healthcheck/delivery/http"
	hc_repo "github.com/tokenmart/goapi/stores/healthcheck/repository"
	hc_usecase "github.com/tokenmart/goapi/stores/healthcheck/usecase"
	listing_delivery "github.com/tokenmart/goapi/stores/listing/delivery/http"
	listing_repository "github.com/tokenmart/goapi/stores/listing/repository"
	listing_usecase "github.com/tokenmart/goapi/stores/listing/usecase"
	platform_delivery "github.com/tokenmart/goapi/stores/platform/delivery/http"
	platform_repository "github.com/tokenmart/goapi/stores/platform/repository"
	platform_usecase "github.com/tokenmart/goapi/stores/platform/usecase"
)

func init() {
	viper.SetConfigType("yaml")
	viper.SetConfigFile(`infra/configs/config.yaml`)
	err := viper.ReadInConfig()
	if err != nil {
		panic(err)
	}

	if viper.GetBool(`debug`) {
		log.Log().Info("Service RUN on DEBUG mode")
	}
}

func main() {
	// init echo
	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{}))
	e.Use(middleware.RequestID())
	middL := mmiddleware.InitMiddleware()
	e.Use(middL.ResponseLogger())
	e.Use(middL.AddContext())
	e.Use(middleware.CORS())
	e.Validator = bValidator.NewCustomValidator(validator.New())

	context := ctx.Background()

	// init mongo client
	context.Info("init mongo")
	uri := viper.GetString("mongo.uri")
	authDBName := viper.GetString("mongo.authDBName")
	dbName := viper.GetString("mongo.dbName")
	enableSSL := viper.GetBool("mongo.enableSSL")
	checkIndex := viper.GetBool("mongo.checkIndex")
	mongoClient := mongoclient.MustConnectMongoClient(uri, authDBName, dbName, enableSSL, true, 2)
	q := query.New(mongoClient, checkIndex)

	// init chain service
	networks := viper.Sub("networks")
	keys := networks.AllSettings()
	rpcs := make(map[int32]string)
	for k := range keys {
		chainId := networks.GetInt32(fmt.Sprintf("%s.chainId", k))
		rpcs[chainId] = networks.GetString(fmt.Sprintf("%s.rpcUrl", k))
	}
	chainService, err := chain.NewClient(context, &chain.ClientCfg{
		RpcUrls:     rpcs,
		OperatorKey: viper.GetString("chain.operatorKey"),
	})
	if err != nil {
		context.WithField("err", err).Warn("chainService started with error")
	}
	erc721Service := contract.NewErc721(chainService)
	erc2981Service := contract.NewErc2981(chainService)
	payoutService := payout.New(chainService)

	// construct repository, usecase and delivery
	hcRepo := hc_repo.New(mongoClient)
	listingRepo := listing_repository.NewListingRepo(q)
	fingerprintRepo := listing_repository.NewFingerprintRepo(q)
	activityRepo := listing_repository.NewActivityRepo(q)
	settlementRepo := listing_repository.NewSettlementRepo(q)
	platformRepo := platform_repository.NewPlatformRepo(q)

	seedPlatformSettings(context, platformRepo)

	hc := hc_usecase.New(hcRepo)
	auth := auth_usecase.New(viper.GetString("auth.jwtSecret"), viper.GetString("auth.signatureMsg"))
	listingUC := listing_usecase.New(&listing_usecase.ListingUseCaseCfg{
		ListingRepo:     listingRepo,
		FingerprintRepo: fingerprintRepo,
		ActivityRepo:    activityRepo,
		SettlementRepo:  settlementRepo,
		PlatformRepo:    platformRepo,
		Erc721:          erc721Service,
		Erc2981:         erc2981Service,
		Payout:          payoutService,
		Operator:        domain.Address(chainService.OperatorAddress().Hex()).ToLower(),
	})
	platformUC := platform_usecase.New(&platform_usecase.PlatformUseCaseCfg{
		PlatformRepo: platformRepo,
		ActivityRepo: activityRepo,
	})

	adminAddresses := viper.GetStringSlice("admin.addresses")
	authMiddleware := auth_middleware.New(auth, adminAddresses)

	hc_delivery.New(e, hc)
	auth_delivery.New(e, auth, viper.GetString("auth.signatureMsg"))
	listing_delivery.New(e, listingUC, authMiddleware.Auth())
	platform_delivery.New(e, platformUC, authMiddleware.Auth(), authMiddleware.IsAdmin())

	go func() {
		if err := e.Start(viper.GetString("server.address")); err != nil && err != http.ErrServerClosed {
			log.Log().WithField("err", err).Error("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 10 seconds.
	// Use a buffered channel to avoid missing signals as recommended for signal.Notify
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-quit
	log.Log().WithField("signal", sig).Info("received signal")
	ctx, cancel := ctx.WithTimeout(context, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Log().WithField("err", err).Error("shutting down the server")
	} else {
		log.Log().Info("shutdown server successfully")
	}
}

// seedPlatformSettings writes the configured fee settings for any chain that
// has no settings document yet. Existing documents are left untouched so
// admin changes survive restarts.
func seedPlatformSettings(context ctx.Ctx, repo platform.Repo) {
	platforms := viper.Sub("platform")
	if platforms == nil {
		return
	}
	for k := range platforms.AllSettings() {
		chainId := domain.ChainId(platforms.GetInt32(fmt.Sprintf("%s.chainId", k)))
		if _, err := repo.FindOne(context, chainId); err == nil {
			continue
		}
		settings := &platform.Settings{
			ChainId:      chainId,
			FeeBps:       platforms.GetInt64(fmt.Sprintf("%s.feeBps", k)),
			FeeRecipient: domain.Address(platforms.GetString(fmt.Sprintf("%s.feeRecipient", k))).ToLower(),
			UpdatedAt:    time.Now(),
		}
		if err := repo.Upsert(context, settings); err != nil {
			context.WithField("err", err).Panic("failed to seed platform settings")
		}
		context.WithFields(log.Fields{
			"chainId": chainId,
			"feeBps":  settings.FeeBps,
		}).Info("seeded platform settings")
	}
}
