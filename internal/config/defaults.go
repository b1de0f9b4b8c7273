package config

import (
	"time"

	"github.com/hyperjump/horomatch/internal/horoscope"
	"github.com/hyperjump/horomatch/internal/relay"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	cp := horoscope.DefaultCounterpart()

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Relay.Host == "" {
		cfg.Relay.Host = "localhost"
	}
	if cfg.Relay.Port == 0 {
		cfg.Relay.Port = 8090
	}
	if cfg.Relay.BasePath == "" {
		cfg.Relay.BasePath = relay.DefaultBasePath
	}
	if cfg.Relay.SearchURL == "" {
		cfg.Relay.SearchURL = relay.DefaultSearchURL
	}
	if cfg.Relay.MatchURL == "" {
		cfg.Relay.MatchURL = relay.DefaultMatchURL
	}
	if cfg.Relay.NakshatraURL == "" {
		cfg.Relay.NakshatraURL = relay.DefaultNakshatraURL
	}
	if cfg.Relay.Origin == "" {
		cfg.Relay.Origin = relay.DefaultOrigin
	}
	if cfg.Relay.UserAgent == "" {
		cfg.Relay.UserAgent = relay.DefaultUserAgent
	}
	if cfg.Relay.Timeout == 0 {
		cfg.Relay.Timeout = 30 * time.Second
	}
	if cfg.Relay.MaxBodyBytes == 0 {
		cfg.Relay.MaxBodyBytes = 1 << 20
	}

	if cfg.Client.RelayURL == "" {
		cfg.Client.RelayURL = "http://localhost:8090" + relay.DefaultBasePath
	}
	if cfg.Client.Timeout == 0 {
		cfg.Client.Timeout = 30 * time.Second
	}
	if cfg.Client.LocationCacheSize == 0 {
		cfg.Client.LocationCacheSize = 256
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/horomatch/data/horomatch.db"
	}
	if cfg.Storage.RedisURL == "" {
		cfg.Storage.RedisURL = "redis://localhost:6379/0"
	}
	if cfg.Storage.KeyPrefix == "" {
		cfg.Storage.KeyPrefix = "horomatch:"
	}

	if cfg.Search.CandidatesPerRound == 0 {
		cfg.Search.CandidatesPerRound = 100
	}
	if cfg.Search.Concurrency == 0 {
		cfg.Search.Concurrency = 100
	}
	if cfg.Search.HistoryLimit == 0 {
		cfg.Search.HistoryLimit = 10
	}
	if cfg.Search.ReplayWindow == 0 {
		cfg.Search.ReplayWindow = 500 * time.Millisecond
	}
	if cfg.Search.FixedYear == 0 {
		cfg.Search.FixedYear = cp.Year
	}

	if cfg.Counterpart.Name == "" {
		cfg.Counterpart.Name = cp.Name
	}
	if cfg.Counterpart.Gender == "" {
		cfg.Counterpart.Gender = cp.Gender
	}
	if cfg.Counterpart.Hour == 0 {
		cfg.Counterpart.Hour = cp.Hour
	}
	if cfg.Counterpart.Minute == 0 {
		cfg.Counterpart.Minute = cp.Minute
	}
	if cfg.Counterpart.AmPm == "" {
		cfg.Counterpart.AmPm = cp.AmPm
	}
	if cfg.Counterpart.Location == "" {
		cfg.Counterpart.Location = cp.Location
	}
	if cfg.Counterpart.Loc == "" {
		cfg.Counterpart.Loc = cp.Loc
	}

	if cfg.Subject.Gender == "" {
		cfg.Subject.Gender = horoscope.DefaultSubjectGender
	}
}
