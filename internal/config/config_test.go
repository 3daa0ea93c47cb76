package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Prefix != "http://localhost:5000" {
		t.Fatalf("prefix = %q", cfg.Prefix)
	}
	if cfg.IngestPort != 5000 {
		t.Fatalf("port = %d", cfg.IngestPort)
	}
	if cfg.DefaultRewardPerDep.String() != "1" {
		t.Fatalf("default reward = %s", cfg.DefaultRewardPerDep)
	}
}

func TestAllowedUserIDsEmptyMeansOpen(t *testing.T) {
	cfg := Load()
	if !cfg.IsAllowed(12345) {
		t.Fatal("empty allow-list must admit everyone")
	}
}

func TestAllowedUserIDs(t *testing.T) {
	t.Setenv("ALLOWED_USER_IDS", "10, 20")
	cfg := Load()

	if !cfg.IsAllowed(10) || !cfg.IsAllowed(20) {
		t.Fatal("listed ids must be allowed")
	}
	if cfg.IsAllowed(30) {
		t.Fatal("unlisted id must be rejected")
	}
}

func TestAffiliateAliases(t *testing.T) {
	t.Setenv("AFFILIATE_ALIASES", "100:200, 300:400, garbage")
	cfg := Load()

	if cfg.ResolveAlias(100) != 200 || cfg.ResolveAlias(300) != 400 {
		t.Fatalf("aliases = %v", cfg.AffiliateAliases)
	}
	if cfg.ResolveAlias(999) != 999 {
		t.Fatal("unaliased id must pass through")
	}
}

func TestCampaignLabels(t *testing.T) {
	t.Setenv("CAMPAIGN_LABELS", "c1:Royal, c2:Summer Promo")
	cfg := Load()

	if cfg.CampaignLabels["c1"] != "Royal" {
		t.Fatalf("labels = %v", cfg.CampaignLabels)
	}
	if cfg.CampaignLabels["c2"] != "Summer Promo" {
		t.Fatalf("labels = %v", cfg.CampaignLabels)
	}
}

func TestPrefixTrailingSlashTrimmed(t *testing.T) {
	t.Setenv("PREFIX", "https://track.example.com/")
	cfg := Load()

	if cfg.Prefix != "https://track.example.com" {
		t.Fatalf("prefix = %q", cfg.Prefix)
	}
}
