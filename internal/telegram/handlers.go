package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"

	"github.com/MICROWAVE-web/KazikPartnerStats/internal/config"
	"github.com/MICROWAVE-web/KazikPartnerStats/internal/report"
	"github.com/MICROWAVE-web/KazikPartnerStats/internal/storage"
)

// Bot wraps the telegram bot with handlers
type Bot struct {
	bot     *bot.Bot
	cfg     *config.Config
	storage *storage.Storage
	agg     *report.Aggregator
	states  *StateManager
	log     *slog.Logger
}

// New creates a new telegram bot
func New(cfg *config.Config, store *storage.Storage, agg *report.Aggregator, log *slog.Logger) (*Bot, error) {
	b := &Bot{
		cfg:     cfg,
		storage: store,
		agg:     agg,
		states:  NewStateManager(),
		log:     log,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
	}

	tgBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot

	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/generate", bot.MatchTypeExact, b.generateHandler)

	return b, nil
}

// Start starts the bot polling
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// --- Handlers ---

func (b *Bot) startHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	userID := update.Message.From.ID
	if !b.cfg.IsAllowed(userID) {
		b.sendMessage(ctx, update.Message.Chat.ID, "❌ У вас нет доступа к этому боту.", nil)
		return
	}

	current, err := b.storage.DefaultReward(userID)
	if err != nil {
		b.log.Error("get default reward", "user_id", userID, "error", err)
		return
	}

	text := fmt.Sprintf(
		"👋 Добро пожаловать! Это партнерский бот.\n\n"+
			"Текущее вознаграждение за первый депозит: <b>%s</b>\n\n"+
			"Используйте меню ниже.",
		current.StringFixed(2),
	)

	b.sendMessage(ctx, update.Message.Chat.ID, text, MainKeyboard())
}

func (b *Bot) generateHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	userID := update.Message.From.ID
	if !b.cfg.IsAllowed(userID) {
		b.sendMessage(ctx, update.Message.Chat.ID, "❌ У вас нет доступа к этому боту.", nil)
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID, b.linksText(userID), MainKeyboard())
}

func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	userID := update.Message.From.ID
	if !b.cfg.IsAllowed(userID) {
		b.sendMessage(ctx, update.Message.Chat.ID, "❌ У вас нет доступа к этому боту.", nil)
		return
	}

	text := strings.TrimSpace(update.Message.Text)

	state := b.states.Get(userID)
	if state == nil {
		return
	}

	switch state.State {
	case StateWaitDefaultReward:
		b.handleDefaultRewardInput(ctx, update.Message, text)
	case StateWaitCampaignID:
		b.handleCampaignIDInput(ctx, update.Message, text)
	case StateWaitCampaignReward:
		b.handleCampaignRewardInput(ctx, update.Message, text, state)
	case StateWaitGrant:
		b.handleGrantInput(ctx, update.Message, text)
	case StateWaitRevoke:
		b.handleRevokeInput(ctx, update.Message, text)
	case StateWaitViewOwner:
		b.handleViewOwnerInput(ctx, update.Message, text)
	}
}

func (b *Bot) handleDefaultRewardInput(ctx context.Context, msg *models.Message, text string) {
	amount, err := parseAmount(text)
	if err != nil {
		b.sendMessage(ctx, msg.Chat.ID, "Пожалуйста, введите корректное число, например 10 или 12.5", nil)
		return
	}

	userID := msg.From.ID
	if err := b.storage.SetDefaultReward(userID, amount); err != nil {
		b.log.Error("set default reward", "user_id", userID, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "❌ Ошибка при сохранении.", MainKeyboard())
		return
	}
	b.states.Clear(userID)

	b.sendMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("Готово. Новое вознаграждение: <b>%s</b>", amount.StringFixed(2)),
		MainKeyboard(),
	)
}

func (b *Bot) handleCampaignIDInput(ctx context.Context, msg *models.Message, text string) {
	if text == "" {
		b.sendMessage(ctx, msg.Chat.ID, "Введите идентификатор кампании.", nil)
		return
	}

	b.states.Set(msg.From.ID, StateWaitCampaignReward, map[string]interface{}{
		"campaign_id": text,
	})

	b.sendMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("Введите вознаграждение для кампании <b>%s</b> (число, например 10 или 12.5)", text),
		BackKeyboard(),
	)
}

func (b *Bot) handleCampaignRewardInput(ctx context.Context, msg *models.Message, text string, state *UserState) {
	amount, err := parseAmount(text)
	if err != nil {
		b.sendMessage(ctx, msg.Chat.ID, "Пожалуйста, введите корректное число, например 10 или 12.5", nil)
		return
	}

	userID := msg.From.ID
	campaignID, ok := campaignIDFromState(state)
	if !ok {
		b.states.Clear(userID)
		b.sendMessage(ctx, msg.Chat.ID, "❌ Сессия сброшена, начните заново.", MainKeyboard())
		return
	}

	if err := b.storage.SetCampaignReward(userID, campaignID, amount); err != nil {
		b.log.Error("set campaign reward", "user_id", userID, "campaign_id", campaignID, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "❌ Ошибка при сохранении.", MainKeyboard())
		return
	}
	b.states.Clear(userID)

	b.sendMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("Готово. Вознаграждение для кампании <b>%s</b>: <b>%s</b>",
			campaignID, amount.StringFixed(2)),
		MainKeyboard(),
	)
}

// campaignRewardPrompt lists the affiliate's current overrides above the
// campaign id prompt so existing rates are visible before changing one.
func (b *Bot) campaignRewardPrompt(userID int64) string {
	const prompt = "Введите идентификатор кампании:"

	overrides, err := b.storage.ListCampaignRewards(userID)
	if err != nil {
		b.log.Error("list campaign rewards", "user_id", userID, "error", err)
		return prompt
	}
	if len(overrides) == 0 {
		return prompt
	}

	var sb strings.Builder
	sb.WriteString("Текущие ставки по кампаниям:\n")
	for _, cr := range overrides {
		fmt.Fprintf(&sb, "<b>%s</b>: %s\n", cr.CampaignID, cr.Reward.StringFixed(2))
	}
	sb.WriteString("\n")
	sb.WriteString(prompt)
	return sb.String()
}

func (b *Bot) handleGrantInput(ctx context.Context, msg *models.Message, text string) {
	userID := msg.From.ID

	viewerID, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		b.sendMessage(ctx, msg.Chat.ID, "Введите числовой ID пользователя.", nil)
		return
	}
	b.states.Clear(userID)

	if err := b.storage.GrantViewAccess(userID, viewerID); err != nil {
		b.log.Error("grant view access", "owner_id", userID, "viewer_id", viewerID, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "❌ Ошибка при выдаче доступа.", SharingKeyboard())
		return
	}

	b.sendMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("✅ Пользователь <code>%d</code> теперь видит ваши отчеты.", viewerID),
		SharingKeyboard(),
	)
}

func (b *Bot) handleRevokeInput(ctx context.Context, msg *models.Message, text string) {
	userID := msg.From.ID

	viewerID, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		b.sendMessage(ctx, msg.Chat.ID, "Введите числовой ID пользователя.", nil)
		return
	}
	b.states.Clear(userID)

	if err := b.storage.RevokeViewAccess(userID, viewerID); err != nil {
		b.log.Error("revoke view access", "owner_id", userID, "viewer_id", viewerID, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "❌ Ошибка при отзыве доступа.", SharingKeyboard())
		return
	}

	b.sendMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("✅ Доступ для <code>%d</code> отозван.", viewerID),
		SharingKeyboard(),
	)
}

func (b *Bot) handleViewOwnerInput(ctx context.Context, msg *models.Message, text string) {
	userID := msg.From.ID

	ownerID, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		b.sendMessage(ctx, msg.Chat.ID, "Введите числовой ID владельца отчета.", nil)
		return
	}
	b.states.Clear(userID)

	allowed, err := b.storage.HasViewAccess(ownerID, userID)
	if err != nil {
		b.log.Error("check view access", "owner_id", ownerID, "viewer_id", userID, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "❌ Ошибка при проверке доступа.", SharingKeyboard())
		return
	}
	if !allowed {
		b.sendMessage(ctx, msg.Chat.ID,
			fmt.Sprintf("❌ Пользователь <code>%d</code> не открывал вам доступ.", ownerID),
			SharingKeyboard(),
		)
		return
	}

	stats, err := b.agg.Aggregate(ownerID, "all")
	if err != nil {
		b.log.Error("aggregate shared report", "owner_id", ownerID, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "❌ Ошибка при построении отчета.", SharingKeyboard())
		return
	}

	header := fmt.Sprintf("Отчет пользователя <code>%d</code>\n\n", ownerID)
	b.sendMessage(ctx, msg.Chat.ID, header+report.FormatReport("all", stats), SharingKeyboard())
}

func (b *Bot) callbackHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	userID := cb.From.ID
	data := cb.Data

	if !b.cfg.IsAllowed(userID) {
		tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: cb.ID,
			Text:            "❌ У вас нет доступа к этому боту.",
			ShowAlert:       true,
		})
		return
	}

	// Answer callback to remove loading state
	tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
	})

	switch {
	case data == "back", data == "menu_refresh":
		b.states.Clear(userID)
		b.showMainMenu(ctx, cb)
	case data == "menu_generate":
		b.editMessage(ctx, cb.Message, b.linksText(userID), MainKeyboard())
	case data == "menu_set_reward":
		b.states.Set(userID, StateWaitDefaultReward, nil)
		b.editMessage(ctx, cb.Message,
			"Введите новое значение вознаграждения (число, например 10 или 12.5)",
			BackKeyboard(),
		)
	case data == "menu_set_campaign_reward":
		b.states.Set(userID, StateWaitCampaignID, nil)
		b.editMessage(ctx, cb.Message,
			b.campaignRewardPrompt(userID),
			BackKeyboard(),
		)
	case strings.HasPrefix(data, "report:"):
		b.showReport(ctx, cb, strings.TrimPrefix(data, "report:"))
	case data == "report_campaigns":
		b.showCampaignReport(ctx, cb)
	case data == "menu_share":
		b.showSharingMenu(ctx, cb)
	case data == "share_grant":
		b.states.Set(userID, StateWaitGrant, nil)
		b.editMessage(ctx, cb.Message,
			"Введите ID пользователя, которому открыть доступ к вашим отчетам:",
			BackKeyboard(),
		)
	case data == "share_revoke":
		b.states.Set(userID, StateWaitRevoke, nil)
		b.editMessage(ctx, cb.Message,
			"Введите ID пользователя, у которого отозвать доступ:",
			BackKeyboard(),
		)
	case data == "share_viewers":
		b.showViewers(ctx, cb)
	case data == "share_view":
		b.states.Set(userID, StateWaitViewOwner, nil)
		b.editMessage(ctx, cb.Message,
			"Введите ID владельца отчета, который вам открыли:",
			BackKeyboard(),
		)
	default:
		b.log.Warn("unknown callback", "data", data, "user_id", userID)
	}
}

func (b *Bot) showMainMenu(ctx context.Context, cb *models.CallbackQuery) {
	userID := cb.From.ID

	current, err := b.storage.DefaultReward(userID)
	if err != nil {
		b.log.Error("get default reward", "user_id", userID, "error", err)
		return
	}

	text := fmt.Sprintf(
		"👋 Добро пожаловать! Это партнерский бот.\n\n"+
			"Текущее вознаграждение за первый депозит: <b>%s</b>\n\n"+
			"Используйте меню ниже.",
		current.StringFixed(2),
	)

	b.editMessage(ctx, cb.Message, text, MainKeyboard())
}

func (b *Bot) showReport(ctx context.Context, cb *models.CallbackQuery, token string) {
	userID := cb.From.ID

	stats, err := b.agg.Aggregate(userID, token)
	if err != nil {
		b.log.Error("aggregate", "user_id", userID, "period", token, "error", err)
		b.editMessage(ctx, cb.Message, "❌ Ошибка при построении отчета.", MainKeyboard())
		return
	}

	text := report.FormatReport(token, stats)

	// The all-time window has no fixed start, show the first event date instead
	if token == "all" && len(stats) > 0 {
		if first, err := b.storage.EarliestEventTime(userID); err == nil {
			text += fmt.Sprintf("\n\nДанные с %s", first.Format("02.01.2006"))
		}
	}

	b.editMessage(ctx, cb.Message, text, MainKeyboard())
}

func (b *Bot) showCampaignReport(ctx context.Context, cb *models.CallbackQuery) {
	userID := cb.From.ID

	stats, err := b.agg.Aggregate(userID, "all")
	if err != nil {
		b.log.Error("aggregate by campaign", "user_id", userID, "error", err)
		b.editMessage(ctx, cb.Message, "❌ Ошибка при построении отчета.", MainKeyboard())
		return
	}

	text := report.FormatCampaignReport("all", stats, b.cfg.CampaignLabels)
	b.editMessage(ctx, cb.Message, text, MainKeyboard())
}

func (b *Bot) showSharingMenu(ctx context.Context, cb *models.CallbackQuery) {
	owners, err := b.storage.ListOwnersVisibleTo(cb.From.ID)
	if err != nil {
		b.log.Error("list owners", "viewer_id", cb.From.ID, "error", err)
		return
	}

	text := "👥 <b>Доступ к отчетам</b>\n\n"
	if len(owners) == 0 {
		text += "Вам пока никто не открыл свои отчеты."
	} else {
		var lines []string
		for _, id := range owners {
			lines = append(lines, fmt.Sprintf("• <code>%d</code>", id))
		}
		text += "Вам открыты отчеты:\n" + strings.Join(lines, "\n")
	}

	b.editMessage(ctx, cb.Message, text, SharingKeyboard())
}

func (b *Bot) showViewers(ctx context.Context, cb *models.CallbackQuery) {
	viewers, err := b.storage.ListViewers(cb.From.ID)
	if err != nil {
		b.log.Error("list viewers", "owner_id", cb.From.ID, "error", err)
		return
	}

	text := "📋 <b>Кому открыты ваши отчеты</b>\n\n"
	if len(viewers) == 0 {
		text += "Никому."
	} else {
		var lines []string
		for _, id := range viewers {
			lines = append(lines, fmt.Sprintf("• <code>%d</code>", id))
		}
		text += strings.Join(lines, "\n")
	}

	b.editMessage(ctx, cb.Message, text, SharingKeyboard())
}

// --- Helpers ---

func (b *Bot) linksText(userID int64) string {
	return fmt.Sprintf(
		"Ссылка для регистрации:\n"+
			"<code>%s/%d/registration?btag=${btag}&amp;campaign_id=${campaign}</code>\n\n"+
			"Ссылка для первого депозита:\n"+
			"<code>%s/%d/firstdep?btag=${btag}&amp;campaign_id=${campaign}</code>",
		b.cfg.Prefix, userID, b.cfg.Prefix, userID,
	)
}

// parseAmount parses user reward input. Comma decimals are accepted, the
// value must be finite and non-negative.
func parseAmount(text string) (decimal.Decimal, error) {
	text = strings.Replace(strings.TrimSpace(text), ",", ".", 1)
	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount")
	}
	return amount, nil
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		b.log.Error("send message", "error", err)
	}
}

func (b *Bot) editMessage(ctx context.Context, msg models.MaybeInaccessibleMessage, text string, keyboard *models.InlineKeyboardMarkup) {
	if msg.Message == nil {
		return
	}

	params := &bot.EditMessageTextParams{
		ChatID:    msg.Message.Chat.ID,
		MessageID: msg.Message.ID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.EditMessageText(ctx, params)
	if err != nil {
		b.log.Error("edit message", "error", err)
	}
}

// SendNotification sends a message to a user outside of an update flow,
// used by the periodic broadcaster.
func (b *Bot) SendNotification(ctx context.Context, userID int64, text string) error {
	disablePreview := true
	params := &bot.SendMessageParams{
		ChatID:    userID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	}

	_, err := b.bot.SendMessage(ctx, params)
	return err
}
