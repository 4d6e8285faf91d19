// Package config holds the process-wide configuration read through viper.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Global configuration variables
var (
	// ISBNdbAPIKey authenticates against the primary provider. Empty means
	// the provider is skipped.
	ISBNdbAPIKey string
	// GoogleBooksAPIKey is optional; Google Books works unauthenticated at
	// a lower quota.
	GoogleBooksAPIKey string
	// SchedulerToken authenticates the batch scheduler against the API.
	SchedulerToken string
	// AdminToken authenticates operators against the API.
	AdminToken string
	// StorePath is the books database file.
	StorePath string
	// CacheDBFile is the provider response cache database file.
	CacheDBFile string
	// CacheTTL is how long cached provider responses stay fresh.
	CacheTTL time.Duration
	// ServerAddr is the API listen address.
	ServerAddr string
)

// InitConfig initializes the global configuration from viper.
func InitConfig() {
	viper.SetDefault("store.dbfile", "./books.db")
	viper.SetDefault("cache.dbfile", "./bookfetch_cache.db")
	viper.SetDefault("cache.ttl", 720*time.Hour)
	viper.SetDefault("server.addr", ":8080")

	ISBNdbAPIKey = viper.GetString("isbndb.api_key")
	GoogleBooksAPIKey = viper.GetString("googlebooks.api_key")
	SchedulerToken = viper.GetString("server.scheduler_token")
	AdminToken = viper.GetString("server.admin_token")
	StorePath = viper.GetString("store.dbfile")
	CacheDBFile = viper.GetString("cache.dbfile")
	CacheTTL = viper.GetDuration("cache.ttl")
	ServerAddr = viper.GetString("server.addr")
}
