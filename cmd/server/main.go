package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	identity "github.com/goliatone/go-identity"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// config is the env-backed identity.Config implementation.
type config struct {
	Address             string
	DSN                 string
	SigningKey          string
	Issuer              string
	TokenExpiration     int
	CookieName          string
	CookieSecure        bool
	VerificationCodeTTL string
	RecoveryTokenTTL    string
	Debug               bool
}

func (c *config) GetSigningKey() string          { return c.SigningKey }
func (c *config) GetIssuer() string              { return c.Issuer }
func (c *config) GetTokenExpiration() int        { return c.TokenExpiration }
func (c *config) GetCookieName() string          { return c.CookieName }
func (c *config) GetCookieSecure() bool          { return c.CookieSecure }
func (c *config) GetVerificationCodeTTL() string { return c.VerificationCodeTTL }
func (c *config) GetRecoveryTokenTTL() string    { return c.RecoveryTokenTTL }

func loadConfig() *config {
	cfg := &config{
		Address:             envOr("IDENTITY_ADDRESS", ":3000"),
		DSN:                 envOr("IDENTITY_DSN", "file:identity.db?cache=shared&_pragma=foreign_keys(1)"),
		SigningKey:          envOr("IDENTITY_SIGNING_KEY", ""),
		Issuer:              envOr("IDENTITY_ISSUER", "go-identity"),
		TokenExpiration:     24,
		CookieName:          envOr("IDENTITY_COOKIE_NAME", "session"),
		CookieSecure:        os.Getenv("IDENTITY_ENV") == "production",
		VerificationCodeTTL: envOr("IDENTITY_VERIFICATION_TTL", "15m"),
		RecoveryTokenTTL:    envOr("IDENTITY_RECOVERY_TTL", "1h"),
		Debug:               os.Getenv("IDENTITY_DEBUG") != "",
	}

	if v := os.Getenv("IDENTITY_TOKEN_EXPIRATION_HOURS"); v != "" {
		if d, err := time.ParseDuration(v + "h"); err == nil {
			cfg.TokenExpiration = int(d.Hours())
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg := loadConfig()

	if cfg.SigningKey == "" {
		if cfg.CookieSecure {
			log.Fatal("IDENTITY_SIGNING_KEY is required in production")
		}
		cfg.SigningKey = "dev-only-signing-key"
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	ctx := context.Background()
	if _, err := db.NewCreateTable().
		Model((*identity.Account)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		log.Fatalf("creating accounts table: %v", err)
	}

	repo := identity.NewRepositoryManager(db)
	tokens := identity.NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetTokenExpiration(),
		cfg.GetIssuer(),
		nil,
	)
	auther := identity.NewAuthenticator(repo, tokens)
	cookies := identity.NewCookieAuth(cfg)

	app := fiber.New(fiber.Config{
		AppName: cfg.Issuer,
	})

	identity.RegisterAuthRoutes(app,
		identity.WithRepository(repo),
		identity.WithAuthenticator(auther),
		identity.WithTokenService(tokens),
		identity.WithCookieAuth(cookies),
		identity.WithConfig(cfg),
		identity.WithDebug(cfg.Debug),
	)

	// example protected surface, gated the same way app routes would be
	api := app.Group("/api", identity.RequireSession(cookies, tokens))
	api.Get("/me", func(c *fiber.Ctx) error {
		claims, _ := identity.ClaimsFromContext(c)
		return c.JSON(fiber.Map{
			"id":   claims.AccountID(),
			"role": claims.Role(),
		})
	})

	log.Printf("listening on %s (session lifetime %s)", cfg.Address, cookies.GetCookieDuration())

	errC := make(chan error, 1)
	go func() {
		errC <- app.Listen(cfg.Address)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errC:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-quit:
		log.Printf("received %s, shutting down", sig)
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}
}
