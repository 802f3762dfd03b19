package main

import (
	"context"
	"time"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/auth"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/db"
	"storefront/internal/infra/mongostore"
	"storefront/internal/infra/notify"
	"storefront/internal/infra/payment"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/repository"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const resendCooldown = 60 * time.Second

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

// ストア実装の差し替え点
type stores struct {
	users    repository.UserRepository
	carts    repository.CartRepository
	orders   repository.OrderRepository
	products repository.ProductRepository
	audits   repository.AuditLogRepository
	close    func()
}

func main() {
	config.LoadDotenv(".env", "../.env")

	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	//DB接続
	st, err := openStores(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open store")
	}
	defer st.close()

	//Redis（キャッシュ・再送制限）
	rdb := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).Warn("redis unreachable; product cache will fall back to the store")
	}
	cancel()

	//メール（SMTP未設定ならログ出力）
	var sender usecase.NotificationSender
	if cfg.SMTPHost != "" {
		sender = notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	} else {
		sender = notify.NewLogSender(logger)
	}

	//外部決済（キー未設定なら無効）
	var gateway usecase.PaymentGateway
	if cfg.StripeSecretKey != "" {
		gateway = payment.NewStripeClient(cfg.StripeAPIBase, cfg.StripeSecretKey)
	} else {
		logger.Warn("STRIPE_SECRET_KEY is empty; stripe checkout is disabled")
	}

	//usecaseに渡す部品
	idGen := &uuidGenerator{}
	clock := &realClock{}
	issuer := auth.NewJWTIssuer(cfg.JWTSecret, cfg.JWTTTL)

	//Usecase生成
	otp := usecase.NewOTPIssuer(st.orders, sender, clock, logger, cfg.Currency)
	authUC := usecase.NewAuthUsecase(
		st.users,
		usecase.NewBcryptPasswordHasher(cfg.BcryptCost),
		usecase.NewBcryptPasswordVerifier(),
		issuer,
		usecase.NewStaticAdminVerifier(cfg.AdminEmail, cfg.AdminPassword),
		idGen,
		clock,
		logger,
	)
	productUC := usecase.NewProductUsecase(st.products, st.audits, cache.NewProductCache(rdb), idGen, clock, logger)
	cartUC := usecase.NewCartUsecase(st.carts, st.products)
	orderUC := usecase.NewOrderUsecase(
		st.orders,
		st.users,
		st.carts,
		otp,
		gateway,
		cache.NewResendLimiter(rdb, resendCooldown),
		idGen,
		clock,
		logger,
		usecase.OrderOptions{
			DeliveryFee: cfg.DeliveryFee,
			Currency:    cfg.Currency,
			FEURL:       cfg.FEURL,
		},
	)
	adminOrderUC := usecase.NewAdminOrderUsecase(st.orders, st.audits, idGen, clock, logger)

	//Handler生成
	handlers := server.Handlers{
		Auth:         handler.NewAuthHandler(authUC),
		Product:      handler.NewProductHandler(productUC),
		AdminProduct: handler.NewAdminProductHandler(productUC),
		Cart:         handler.NewCartHandler(cartUC),
		Order:        handler.NewOrderHandler(orderUC),
		AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC),
	}
	guards := handler.NewGuards(issuer, st.users)

	//Server起動
	e := server.New(cfg, logger, handlers, guards)
	err = server.Start(e, ":"+cfg.Port, logger)

	//送信中のOTPメールを待ってから終了
	otp.Wait()
	if err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

func openStores(cfg config.Config, logger *log.Logger) (stores, error) {
	if cfg.StoreDriver == config.StorePostgres {
		gormDB, err := db.Connect(cfg)
		if err != nil {
			return stores{}, err
		}
		if err := db.Migrate(gormDB); err != nil {
			return stores{}, err
		}
		logger.Info("using postgres store")

		return stores{
			users:    infraRepo.NewUserGormRepository(gormDB),
			carts:    infraRepo.NewCartGormRepository(gormDB),
			orders:   infraRepo.NewOrderGormRepository(gormDB),
			products: infraRepo.NewProductGormRepository(gormDB),
			audits:   infraRepo.NewAuditLogGormRepository(gormDB),
			close: func() {
				if sqlDB, err := gormDB.DB(); err == nil {
					_ = sqlDB.Close()
				}
			},
		}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mdb, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return stores{}, err
	}
	if err := mongostore.CreateIndexes(ctx, mdb); err != nil {
		return stores{}, err
	}
	logger.Info("using mongo store")

	users := mongostore.NewUserRepository(mdb)
	return stores{
		users:    users,
		carts:    users,
		orders:   mongostore.NewOrderRepository(mdb),
		products: mongostore.NewProductRepository(mdb),
		audits:   mongostore.NewAuditLogRepository(mdb),
		close: func() {
			dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer dcancel()
			_ = mdb.Client().Disconnect(dctx)
		},
	}, nil
}
