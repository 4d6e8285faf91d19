package cmd

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"

	"github.com/mlahti/bookfetch/internal/cache"
	"github.com/mlahti/bookfetch/internal/config"
)

// CLI represents the complete command structure for the bookfetch application
type CLI struct {
	// Global flags
	DB          string `help:"Path to books SQLite database file" default:"./books.db"`
	CacheDBFile string `help:"Path to provider cache SQLite database file" default:"./bookfetch_cache.db"`
	CacheTTL    string `help:"Cache time-to-live duration (e.g., 720h for 30 days)" default:"720h"`
	LogLevel    string `help:"Log level" enum:"debug,info,warn,error" default:"info"`

	Enrich  EnrichCmd  `cmd:"" help:"Run one batch enrichment pass over the book store"`
	Resolve ResolveCmd `cmd:"" help:"Resolve metadata for a single title and author"`
	Search  SearchCmd  `cmd:"" help:"Search providers and the local store by free text"`
	Serve   ServeCmd   `cmd:"" help:"Serve the HTTP API"`
	Cache   CacheCmd   `cmd:"" help:"Inspect or clear the provider response cache"`
	Ping    PingCmd    `cmd:"" help:"Check connectivity to each configured provider"`
}

// CacheCmd groups the cache maintenance subcommands.
type CacheCmd struct {
	Stats cache.StatsCmd `cmd:"" help:"Show per-provider cache entry counts"`
	Clear cache.ClearCmd `cmd:"" help:"Clear one provider's cached responses"`
}

// Execute runs the Kong-based CLI
func Execute() {
	initLogging(slog.LevelInfo)
	initConfig()

	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("bookfetch"),
		kong.Description("Resolve book metadata and covers from ISBNdb, Google Books, and OpenLibrary."),
		kong.UsageOnError(),
	)

	updateGlobalConfig(&cli)

	err := ctx.Run()
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetDefault("store.dbfile", "./books.db")
	viper.SetDefault("cache.dbfile", "./bookfetch_cache.db")
	viper.SetDefault("cache.ttl", "720h") // 30 days
	viper.SetDefault("server.addr", ":8080")

	// Enable environment variable support
	viper.AutomaticEnv()
	for key, env := range map[string]string{
		"isbndb.api_key":         "ISBNDB_API_KEY",
		"googlebooks.api_key":    "GOOGLE_BOOKS_API_KEY",
		"server.scheduler_token": "BOOKFETCH_SCHEDULER_TOKEN",
		"server.admin_token":     "BOOKFETCH_ADMIN_TOKEN",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			slog.Error("Failed to bind environment variable", "env", env, "error", err)
		}
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Info("Config file not found, writing default config file...")
			if err := viper.SafeWriteConfig(); err != nil {
				slog.Error("Error writing config file", "error", err)
			}
			os.Exit(0)
		} else {
			slog.Error("Fatal error config file", "error", err)
			os.Exit(1)
		}
	}

	config.InitConfig()
}

func updateGlobalConfig(cli *CLI) {
	viper.Set("store.dbfile", cli.DB)
	viper.Set("cache.dbfile", cli.CacheDBFile)
	viper.Set("cache.ttl", cli.CacheTTL)

	config.InitConfig()
	initLogging(parseLogLevel(cli.LogLevel))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func initLogging(level slog.Level) {
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
