package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-planner/internal/model"
	"task-planner/internal/notice"
)

const (
	btnSkip          = "⏭️ Skip"
	btnCancelDialog  = "⏪ Cancel input"
	menuLabelNewTask = "➕ New task"
	menuLabelTasks   = "📋 Tasks"
	menuLabelDigest  = "📊 Digest"
	menuLabelHelp    = "ℹ️ Help"
)

// taskButtons offers the next status steps plus delete for one task.
func taskButtons(task model.Task) []tgbotapi.InlineKeyboardButton {
	label := shortID(task.ID)
	var row []tgbotapi.InlineKeyboardButton
	switch task.Status.Normalize() {
	case model.StatusUpcoming:
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("▶️ "+label, cbStatusPrefix+task.ID+":"+string(model.StatusOngoing)))
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("✅", cbStatusPrefix+task.ID+":"+string(model.StatusCompleted)))
	case model.StatusOngoing:
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("✅ "+label, cbStatusPrefix+task.ID+":"+string(model.StatusCompleted)))
	default:
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("↩️ "+label, cbStatusPrefix+task.ID+":"+string(model.StatusUpcoming)))
	}
	return append(row, tgbotapi.NewInlineKeyboardButtonData("🗑", cbDeletePrefix+task.ID))
}

func confirmKeyboard(taskID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Delete", cbConfirmPrefix+taskID),
			tgbotapi.NewInlineKeyboardButtonData("↩️ Keep", cbCancelPrefix+taskID),
		),
	)
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNewTask),
			tgbotapi.NewKeyboardButton(menuLabelTasks),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelDigest),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func priorityKeyboard() tgbotapi.ReplyKeyboardMarkup {
	var row []tgbotapi.KeyboardButton
	for _, p := range model.Priorities {
		row = append(row, tgbotapi.NewKeyboardButton(string(p)))
	}
	kb := tgbotapi.NewReplyKeyboard(
		row,
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func noticeIcon(kind notice.Kind) string {
	switch kind {
	case notice.KindSuccess:
		return "✅"
	case notice.KindError:
		return "❌"
	case notice.KindWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "skip"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "cancel input"
}
