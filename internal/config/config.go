package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Config struct {
	// Telegram
	BotToken       string
	AllowedUserIDs map[int64]bool // empty = open access

	// Public base URL used when generating tracking links
	Prefix string

	// Ingest HTTP server
	IngestHost string
	IngestPort int

	// Database
	DBPath string

	// Reward assigned to an affiliate on first contact
	DefaultRewardPerDep decimal.Decimal

	// Affiliate id remapping applied where ids enter the system
	AffiliateAliases map[int64]int64

	// campaign_id -> human label, used only for display
	CampaignLabels map[string]string

	// Broadcast interval in minutes, 0 disables the loop
	BroadcastIntervalMin int
}

func Load() *Config {
	cfg := &Config{
		BotToken: getEnv("BOT_TOKEN", ""),

		Prefix: strings.TrimSuffix(getEnv("PREFIX", "http://localhost:5000"), "/"),

		IngestHost: getEnv("INGEST_HOST", "0.0.0.0"),
		IngestPort: getEnvInt("INGEST_PORT", 5000),

		DBPath: getEnv("DB_PATH", "./data.sqlite3"),

		BroadcastIntervalMin: getEnvInt("BROADCAST_INTERVAL", 60),
	}

	cfg.DefaultRewardPerDep = getEnvDecimal("DEFAULT_REWARD_PER_DEP", decimal.NewFromInt(1))

	// Parse allowed user IDs, empty list means the bot is open
	cfg.AllowedUserIDs = make(map[int64]bool)
	for _, idStr := range strings.Split(getEnv("ALLOWED_USER_IDS", ""), ",") {
		idStr = strings.TrimSpace(idStr)
		if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			cfg.AllowedUserIDs[id] = true
		}
	}

	// Parse affiliate aliases: "from:to,from:to"
	cfg.AffiliateAliases = make(map[int64]int64)
	for _, pair := range strings.Split(getEnv("AFFILIATE_ALIASES", ""), ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		from, err1 := strconv.ParseInt(parts[0], 10, 64)
		to, err2 := strconv.ParseInt(parts[1], 10, 64)
		if err1 == nil && err2 == nil {
			cfg.AffiliateAliases[from] = to
		}
	}

	// Parse campaign labels: "id:label,id:label"
	cfg.CampaignLabels = make(map[string]string)
	for _, pair := range strings.Split(getEnv("CAMPAIGN_LABELS", ""), ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 && parts[0] != "" {
			cfg.CampaignLabels[parts[0]] = parts[1]
		}
	}

	return cfg
}

// ResolveAlias maps an inbound affiliate id through the alias table.
func (c *Config) ResolveAlias(id int64) int64 {
	if to, ok := c.AffiliateAliases[id]; ok {
		return to
	}
	return id
}

// IsAllowed reports whether a telegram user may talk to the bot.
func (c *Config) IsAllowed(userID int64) bool {
	if len(c.AllowedUserIDs) == 0 {
		return true
	}
	return c.AllowedUserIDs[userID]
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	return defaultVal
}
