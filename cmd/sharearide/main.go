package main

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-print"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/migrate"

	accounts "github.com/sharearide/go-accounts"
	"github.com/sharearide/go-accounts/activitymap"
)

//go:embed views
var viewsFS embed.FS

// AppConfig satisfies accounts.Config from environment values.
type AppConfig struct {
	SigningKey    string
	ContextKey    string
	Issuer        string
	Audience      []string
	TokenHours    int
	ExtendedHours int
	DSN           string
	Addr          string
}

func loadConfig() *AppConfig {
	cfg := &AppConfig{
		SigningKey:    envOr("SHAREARIDE_SIGNING_KEY", "dev-signing-key-change-me"),
		ContextKey:    envOr("SHAREARIDE_CONTEXT_KEY", "claims"),
		Issuer:        envOr("SHAREARIDE_ISSUER", "sharearide"),
		Audience:      []string{envOr("SHAREARIDE_AUDIENCE", "sharearide")},
		TokenHours:    24,
		ExtendedHours: 24 * 7,
		DSN:           envOr("SHAREARIDE_DSN", "file:sharearide.db?cache=shared"),
		Addr:          envOr("SHAREARIDE_ADDR", ":8572"),
	}
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (c *AppConfig) GetSigningKey() string         { return c.SigningKey }
func (c *AppConfig) GetSigningMethod() string      { return "HS256" }
func (c *AppConfig) GetContextKey() string         { return c.ContextKey }
func (c *AppConfig) GetTokenExpiration() int       { return c.TokenHours }
func (c *AppConfig) GetExtendedTokenDuration() int { return c.ExtendedHours }
func (c *AppConfig) GetTokenLookup() string {
	return "header:Authorization,cookie:" + c.ContextKey
}
func (c *AppConfig) GetAuthScheme() string { return "Bearer" }
func (c *AppConfig) GetIssuer() string     { return c.Issuer }
func (c *AppConfig) GetAudience() []string { return c.Audience }

func main() {
	cfg := loadConfig()

	fmt.Println("============")
	fmt.Println(print.MaybeHighlightJSON(cfg))
	fmt.Println("============")

	ctx := context.Background()

	db, err := openDatabase(ctx, cfg.DSN)
	if err != nil {
		log.Fatal(err)
	}

	hub := accounts.NewWatchHub()
	repo := accounts.NewRepositoryManager(db, accounts.WithManagerWatchHub(hub))
	if err := repo.Validate(); err != nil {
		log.Fatal(err)
	}

	registry := prometheus.NewRegistry()
	sink := accounts.NewMetricsSink(registry, feedSink{})

	provider := accounts.NewIdentityService(repo)

	machine := accounts.NewAccountStateMachine(repo.Profiles(),
		accounts.WithStateMachineActivitySink(sink),
	)
	rideMachine := accounts.NewRideStateMachine(repo.Rides(),
		accounts.WithRideStateMachineActivitySink(sink),
	)

	scopes := accounts.NewScopeRegistry(hub)
	broker := accounts.NewTransitionBroker(machine, rideMachine)
	exporter := accounts.NewCSVExporter(repo.Profiles(), repo.Rides(),
		accounts.WithExporterActivitySink(sink),
	)

	auther := accounts.NewAuthenticator(provider, repo.Profiles(), cfg).
		WithActivitySink(sink)

	httpAuth, err := accounts.NewHTTPAuthenticator(auther, cfg)
	if err != nil {
		log.Fatal(err)
	}

	views, err := fs.Sub(viewsFS, "views")
	if err != nil {
		log.Fatal(err)
	}
	engine := django.NewFileSystem(http.FS(views), ".html")

	app := fiber.New(fiber.Config{
		UnescapePath:      true,
		EnablePrintRoutes: true,
		StrictRouting:     false,
		PassLocalsToViews: true,
		Views:             engine,
	})

	limiter := accounts.NewRateLimiter(accounts.DefaultRateLimiterConfig())
	defer limiter.Stop()

	accounts.RegisterAccountRoutes(app, cfg, limiter,
		func(c *accounts.AccountsController) *accounts.AccountsController {
			c.Repo = repo
			c.Provider = provider
			c.Machine = machine
			c.Broker = broker
			c.Exporter = exporter
			c.Auther = httpAuth
			c.Scopes = scopes
			return c
		})

	app.Get("/metrics", adaptor.HTTPHandler(accounts.MetricsHandler(registry)))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.Render("index", fiber.Map{
			"title": "Share-A-Ride",
		})
	})

	go func() {
		if err := app.Listen(cfg.Addr); err != nil {
			log.Fatal(err)
		}
	}()

	WaitExitSignal()

	if err := app.Shutdown(); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func openDatabase(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	migrations := migrate.NewMigrations()
	migrationsFS, err := fs.Sub(accounts.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return nil, err
	}
	if err := migrations.Discover(migrationsFS); err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, err
	}
	if !group.IsZero() {
		fmt.Printf("migrated to %s\n", group)
	}

	return db, nil
}

// feedSink forwards normalized activity to stdout as JSON lines, the shape
// downstream feed consumers ingest.
type feedSink struct{}

func (feedSink) Record(_ context.Context, event accounts.ActivityEvent) error {
	normalized := activitymap.Normalize(event)
	line, err := json.Marshal(normalized)
	if err != nil {
		return err
	}
	fmt.Println(string(line))
	return nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
