package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MICROWAVE-web/KazikPartnerStats/internal/period"
	"github.com/MICROWAVE-web/KazikPartnerStats/internal/storage"
)

var periodTitles = map[string]string{
	period.All:      "Все время",
	period.Hour:     "Час",
	period.Day:      "День",
	period.Week:     "Неделя",
	period.LastWeek: "Прошлая неделя",
	period.Month:    "Месяц",
}

// PeriodTitle returns the display title for a period token.
func PeriodTitle(token string) string {
	if title, ok := periodTitles[token]; ok {
		return title
	}
	return periodTitles[period.All]
}

// FormatReport renders the flat by-btag report as telegram HTML.
// Reward sums are rounded to 2 decimal places here and nowhere earlier.
func FormatReport(token string, stats map[storage.GroupKey]Stats) string {
	title := PeriodTitle(token)
	if len(stats) == 0 {
		return fmt.Sprintf("📊 Отчет (%s)\n\nНет данных.", title)
	}

	flat := ByBtag(stats)
	lines := []string{fmt.Sprintf("📊 Отчет (%s)", title), ""}

	totalRegs, totalDeps := 0, 0
	for _, btag := range sortedKeys(flat) {
		st := flat[btag]
		lines = append(lines, formatBucket(btag, st), "")
		totalRegs += st.Registrations
		totalDeps += st.Deposits
	}

	lines = append(lines, fmt.Sprintf("Итого: регистрации %d, депозиты %d", totalRegs, totalDeps))
	return strings.Join(lines, "\n")
}

// FormatCampaignReport renders the campaign-grouped report. Campaign ids are
// mapped to display labels through labels; unknown ids render as-is.
func FormatCampaignReport(token string, stats map[storage.GroupKey]Stats, labels map[string]string) string {
	title := PeriodTitle(token)
	if len(stats) == 0 {
		return fmt.Sprintf("📊 Отчет по кампаниям (%s)\n\nНет данных.", title)
	}

	nested := ByCampaign(stats)
	lines := []string{fmt.Sprintf("📊 Отчет по кампаниям (%s)", title)}

	campaigns := make([]string, 0, len(nested))
	for campaign := range nested {
		campaigns = append(campaigns, campaign)
	}
	sort.Strings(campaigns)

	for _, campaign := range campaigns {
		lines = append(lines, "", fmt.Sprintf("🎯 <b>%s</b>", campaignLabel(campaign, labels)))
		byBtag := nested[campaign]
		for _, btag := range sortedKeys(byBtag) {
			lines = append(lines, formatBucket(btag, byBtag[btag]))
		}
	}

	return strings.Join(lines, "\n")
}

func formatBucket(btag string, st Stats) string {
	if btag == "" {
		btag = "-"
	}
	return strings.Join([]string{
		fmt.Sprintf("<blockquote>BTag: %s", btag),
		fmt.Sprintf("Реги: %d", st.Registrations),
		fmt.Sprintf("Депы: %d", st.Deposits),
		fmt.Sprintf("Сумма: %s</blockquote>", st.Reward.StringFixed(2)),
	}, "\n")
}

func campaignLabel(campaignID string, labels map[string]string) string {
	if campaignID == "" {
		return "Без кампании"
	}
	if label, ok := labels[campaignID]; ok {
		return label
	}
	return campaignID
}

func sortedKeys(m map[string]Stats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
