package telegram

import "github.com/go-telegram/bot/models"

// MainKeyboard returns the main menu keyboard
func MainKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🔗 Генерировать ссылки", CallbackData: "menu_generate"},
			},
			{
				{Text: "💰 Вознаграждение", CallbackData: "menu_set_reward"},
				{Text: "🎯 По кампании", CallbackData: "menu_set_campaign_reward"},
			},
			{
				{Text: "📊 Все время", CallbackData: "report:all"},
				{Text: "⏰ Час", CallbackData: "report:hour"},
			},
			{
				{Text: "📆 День", CallbackData: "report:day"},
				{Text: "📅 Неделя", CallbackData: "report:week"},
			},
			{
				{Text: "🗓️ Прошлая неделя", CallbackData: "report:last_week"},
				{Text: "🗓 Месяц", CallbackData: "report:month"},
			},
			{
				{Text: "🎯 Отчет по кампаниям", CallbackData: "report_campaigns"},
			},
			{
				{Text: "👥 Доступ к отчетам", CallbackData: "menu_share"},
			},
			{
				{Text: "↻ Обновить", CallbackData: "menu_refresh"},
			},
		},
	}
}

// SharingKeyboard returns the shared-access menu keyboard
func SharingKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "➕ Выдать доступ", CallbackData: "share_grant"},
				{Text: "➖ Отозвать доступ", CallbackData: "share_revoke"},
			},
			{
				{Text: "📋 Кому я открыл доступ", CallbackData: "share_viewers"},
			},
			{
				{Text: "👀 Чужой отчет", CallbackData: "share_view"},
			},
			{
				{Text: "⬅️ Назад", CallbackData: "back"},
			},
		},
	}
}

// BackKeyboard returns a simple back button
func BackKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "⬅️ Назад", CallbackData: "back"},
			},
		},
	}
}
