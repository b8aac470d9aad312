package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Storefront/cache"
	"Storefront/cart"
	"Storefront/config"
	"Storefront/currency"
	"Storefront/handlers"
	"Storefront/jwt"
	"Storefront/logger"
	"Storefront/models"
	"Storefront/otp"
	"Storefront/payment"
	"Storefront/routers"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	adminUser := flag.String("create-admin", "", "create or reset an admin account with this username and exit")
	adminPassword := flag.String("admin-password", "", "password for -create-admin")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "無法讀取設定檔:", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "無法建立logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	db, err := config.SetupDatabase(cfg, log)
	if err != nil {
		log.Fatal("無法連接到資料庫", zap.Error(err))
	}
	defer func() {
		dbInstance, _ := db.DB()
		_ = dbInstance.Close()
	}()

	if *adminUser != "" {
		if err := createAdmin(db, *adminUser, *adminPassword); err != nil {
			log.Fatal("無法建立管理員", zap.Error(err))
		}
		log.Info("admin account ready", zap.String("username", *adminUser))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := config.SetupRedis(ctx, cfg)
	if err != nil {
		log.Fatal("無法連接到Redis", zap.Error(err))
	}
	defer rdb.Close()

	if err := run(ctx, cfg, log, db, rdb); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, db *gorm.DB, rdb *redis.Client) error {
	tokens, err := jwt.LoadManager(cfg.JWT.PrivateKeyPath, cfg.JWT.PublicKeyPath, cfg.JWT.TokenTTL)
	if err != nil {
		return err
	}

	defaults, err := cfg.Rates()
	if err != nil {
		return err
	}
	rates := currency.NewRedisRateStore(rdb, defaults)

	var provider otp.Provider
	switch cfg.OTP.Provider {
	case "http":
		provider = otp.NewHTTPProvider(cfg.OTP.BaseURL, cfg.OTP.APIKey)
	default:
		provider = otp.NewRedisProvider(rdb, otp.LogSender{Log: log.Named("otp")}, otp.ProviderConfig{
			TTL:         cfg.OTP.CodeTTL,
			Cooldown:    cfg.OTP.ResendCooldown,
			MaxAttempts: cfg.OTP.MaxAttempts,
		})
	}

	catalog := cache.NewCatalog(db, cache.NewRedisProductCache(rdb, log), log)
	if err := catalog.Warm(ctx); err != nil {
		log.Warn("無法預先載入商品快取", zap.Error(err))
	}

	carts := cart.NewStore(db, rates)
	go cart.NewRevalidator(carts, cfg.Cart.RevalidationInterval, log.Named("cart")).Run(ctx)
	go purgeLoginTokens(ctx, db, log)

	router, err := routers.SetupRouters(routers.Dependencies{
		DB:         db,
		Log:        log,
		Tokens:     tokens,
		Rates:      rates,
		Currencies: defaults,
		Carts:      carts,
		Catalog:    catalog,
		OTP:        otp.NewMachine(provider, cfg.OTP.ResendCooldown),
		Sessions:   otp.NewRedisSessionStore(rdb, cfg.OTP.SessionTTL),
		Checkout: &handlers.Checkout{
			DB:      db,
			Carts:   carts,
			Rates:   rates,
			Catalog: catalog,
			Gateway: payment.NewZarinpalGateway(payment.ZarinpalConfig{
				BaseURL:     cfg.Payment.BaseURL,
				StartPayURL: cfg.Payment.StartPayURL,
				MerchantID:  cfg.Payment.MerchantID,
				CallbackURL: cfg.Payment.CallbackURL,
				Timeout:     cfg.Payment.Timeout,
			}),
			OriginProvince: cfg.App.OriginProvince,
		},
		OriginProvince: cfg.App.OriginProvince,
		UploadDir:      cfg.App.UploadDir,
		AllowOrigins:   cfg.App.AllowOrigins,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", server.Addr), zap.String("env", cfg.App.Env))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}

// purgeLoginTokens removes expired login tokens once an hour.
func purgeLoginTokens(ctx context.Context, db *gorm.DB, log *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			purged, err := jwt.PurgeExpired(ctx, db, now)
			if err != nil {
				log.Warn("purge login tokens", zap.Error(err))
				continue
			}
			if purged > 0 {
				log.Info("purged expired login tokens", zap.Int64("count", purged))
			}
		}
	}
}

// createAdmin creates the account or resets its password and role.
func createAdmin(db *gorm.DB, username, password string) error {
	if !handlers.ValidateUsername(username) {
		return errors.New("username must be 8-20 letters, digits, _ or -")
	}
	if !handlers.ValidatePassword(password) {
		return errors.New("password must be 8-50 characters with upper, lower, digit and symbol")
	}
	hash, err := handlers.HashPassword(password)
	if err != nil {
		return err
	}

	var user models.User
	err = db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{Username: &username}
	} else if err != nil {
		return err
	}
	user.Password = hash
	user.Role = models.RoleAdmin
	return db.Save(&user).Error
}
