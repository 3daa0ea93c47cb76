// Package notifier runs the periodic report broadcast.
package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/MICROWAVE-web/KazikPartnerStats/internal/config"
	"github.com/MICROWAVE-web/KazikPartnerStats/internal/period"
	"github.com/MICROWAVE-web/KazikPartnerStats/internal/report"
	"github.com/MICROWAVE-web/KazikPartnerStats/internal/storage"
)

// Sender delivers a report message to one affiliate. *telegram.Bot
// satisfies it.
type Sender interface {
	SendNotification(ctx context.Context, userID int64, text string) error
}

// Broadcaster periodically sends the hourly report to every affiliate.
type Broadcaster struct {
	cfg     *config.Config
	storage *storage.Storage
	agg     *report.Aggregator
	sender  Sender
	log     *slog.Logger
}

// New creates a new Broadcaster
func New(cfg *config.Config, store *storage.Storage, agg *report.Aggregator, sender Sender, log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		cfg:     cfg,
		storage: store,
		agg:     agg,
		sender:  sender,
		log:     log,
	}
}

// Start runs the broadcast loop until ctx is cancelled. A failure for one
// recipient is logged and never aborts the rest of the broadcast.
func (bc *Broadcaster) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		bc.log.Info("broadcast disabled")
		return
	}

	bc.log.Info("broadcast started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bc.broadcast(ctx)
		}
	}
}

func (bc *Broadcaster) broadcast(ctx context.Context) {
	ids, err := bc.storage.ListAffiliateIDs()
	if err != nil {
		bc.log.Error("list affiliates for broadcast", "error", err)
		return
	}

	// Resolve aliases and drop duplicate targets
	targets := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		id = bc.cfg.ResolveAlias(id)
		if !seen[id] {
			seen[id] = true
			targets = append(targets, id)
		}
	}

	sent := 0
	for _, id := range targets {
		stats, err := bc.agg.Aggregate(id, period.Hour)
		if err != nil {
			bc.log.Error("aggregate for broadcast", "affiliate_id", id, "error", err)
			continue
		}
		if len(stats) == 0 {
			continue
		}

		text := report.FormatReport(period.Hour, stats)
		if err := bc.sender.SendNotification(ctx, id, text); err != nil {
			bc.log.Error("send broadcast", "affiliate_id", id, "error", err)
			continue
		}
		sent++
	}

	bc.log.Info("broadcast complete", "affiliates", len(targets), "sent", sent)
}
