/*
Package config loads process configuration per spec.md's process-level
configuration contract: every key is read from the environment, falling
back to config.yaml and then to built-in defaults. The file is watched
via viper's fsnotify integration and each change is logged; the values
already copied into a Config are not updated, so new tunables take
effect on the next Load.
*/
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/maowbot/maowbot/internal/errs"
)

// PlatformConfig is one provider's OAuth client pair, read from
// TWITCH_CLIENT_ID/TWITCH_CLIENT_SECRET and its Discord/VRChat analogues.
type PlatformConfig struct {
	ClientID     string
	ClientSecret string
}

// Config is the fully resolved process configuration.
type Config struct {
	DBURL            string
	ServerAddr       string
	CertDir          string
	PluginPassphrase string
	BotName          string

	Twitch  PlatformConfig
	Discord PlatformConfig
	VRChat  PlatformConfig

	MaintenanceSchedule  string
	MaintenanceRetention time.Duration
	ReconnectInitial     time.Duration
	ReconnectCap         time.Duration

	v *viper.Viper
}

// Load reads environment variables and configFile (if non-empty) into a
// Config. An environment variable wins over the YAML file for every key,
// secrets (DB_URL, PLUGIN_PASSPHRASE, provider client id/secret pairs)
// included; the file is watched and changes are logged, not applied.
func Load(configFile string, log *slog.Logger) (*Config, error) {
	if log == nil {
		log = slog.Default()
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server_addr", ":50051")
	v.SetDefault("cert_dir", "certs")
	v.SetDefault("bot_name", "maowbot")
	v.SetDefault("maintenance_schedule", "@every 24h")
	v.SetDefault("maintenance_retention", 60*24*time.Hour)
	v.SetDefault("reconnect_initial", time.Second)
	v.SetDefault("reconnect_cap", 60*time.Second)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.Wrap(errs.Io, err, "config: read config file")
		}
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			log.Info("CONFIG_RELOADED", "file", e.Name)
		})
	}

	cfg := &Config{
		DBURL:                v.GetString("db_url"),
		ServerAddr:           v.GetString("server_addr"),
		CertDir:              v.GetString("cert_dir"),
		PluginPassphrase:     v.GetString("plugin_passphrase"),
		BotName:              v.GetString("bot_name"),
		Twitch:               PlatformConfig{ClientID: v.GetString("twitch_client_id"), ClientSecret: v.GetString("twitch_client_secret")},
		Discord:              PlatformConfig{ClientID: v.GetString("discord_client_id"), ClientSecret: v.GetString("discord_client_secret")},
		VRChat:               PlatformConfig{ClientID: v.GetString("vrchat_client_id"), ClientSecret: v.GetString("vrchat_client_secret")},
		MaintenanceSchedule:  v.GetString("maintenance_schedule"),
		MaintenanceRetention: v.GetDuration("maintenance_retention"),
		ReconnectInitial:     v.GetDuration("reconnect_initial"),
		ReconnectCap:         v.GetDuration("reconnect_cap"),
		v:                    v,
	}

	if cfg.DBURL == "" {
		return nil, errs.New(errs.InvalidInput, "config: DB_URL is required")
	}
	if cfg.PluginPassphrase == "" {
		return nil, errs.New(errs.InvalidInput, "config: PLUGIN_PASSPHRASE is required")
	}

	return cfg, nil
}
