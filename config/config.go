package config

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

var once sync.Once

var defaults = map[string]interface{}{
	"debug":                false,
	"log_level":            "",
	"bot_lang":             "en",
	"metrics_port":         9090,
	"check_interval":       "10s",
	"max_concurrent_ticks": 1,
	"fetch_concurrency":    8,
	"alarm_repeat":         10,
	"alarm_gap":            "2s",
	"alarm_cooldown":       "30s",
	"rearm_gap_pct":        "0.002",
	"price_cache_ttl":      "8s",
	"provider_timeout":     "6s",
	"provider_rps":         10,
	"send_max_attempts":    4,
	"send_rate":            25,
	"allowed_chat_ids":     "",
	"store_backend":        "file",
	"data_file":            "alerts.json",
	"db_path":              "data/bot.db",
	"locales_dir":          "locales",
}

func InitConfig() {
	once.Do(func() {
		// A missing .env is fine; the environment wins over it.
		_ = godotenv.Load()

		viper.AutomaticEnv()

		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN", "BOT_TOKEN")
		viper.BindEnv("api_pro_key", "API_PRO_KEY")
		for key := range defaults {
			viper.BindEnv(key, strings.ToUpper(key))
		}

		for key, value := range defaults {
			viper.SetDefault(key, value)
		}
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}

func GetFloat64(key string) float64 {
	InitConfig()
	return viper.GetFloat64(key)
}

// AllowedChatIDs parses the comma separated allow-list. An empty list allows
// every chat.
func AllowedChatIDs() (map[int64]bool, error) {
	allowed := make(map[int64]bool)
	for _, raw := range strings.Split(GetString("allowed_chat_ids"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid ALLOWED_CHAT_IDS entry %q", raw)
		}
		allowed[id] = true
	}
	return allowed, nil
}

// Validate rejects settings the bot cannot run with.
func Validate() error {
	InitConfig()
	if GetString("telegram_bot_token") == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is empty")
	}
	for _, key := range []string{"check_interval", "alarm_cooldown", "price_cache_ttl", "provider_timeout"} {
		if GetDuration(key) <= 0 {
			return errors.Errorf("%s must be a positive duration, got %q", strings.ToUpper(key), GetString(key))
		}
	}
	if GetDuration("alarm_gap") < 0 {
		return errors.Errorf("ALARM_GAP must not be negative, got %q", GetString("alarm_gap"))
	}
	for _, key := range []string{"alarm_repeat", "send_max_attempts", "max_concurrent_ticks", "fetch_concurrency"} {
		if GetInt(key) <= 0 {
			return errors.Errorf("%s must be positive, got %d", strings.ToUpper(key), GetInt(key))
		}
	}
	if GetFloat64("rearm_gap_pct") <= 0 || GetFloat64("rearm_gap_pct") >= 1 {
		return errors.Errorf("REARM_GAP_PCT must be in (0, 1), got %q", GetString("rearm_gap_pct"))
	}
	switch GetString("store_backend") {
	case "file", "sqlite":
	default:
		return errors.Errorf("STORE_BACKEND must be file or sqlite, got %q", GetString("store_backend"))
	}
	if _, err := AllowedChatIDs(); err != nil {
		return err
	}
	return nil
}
