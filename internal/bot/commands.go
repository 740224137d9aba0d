package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"task-planner/internal/filter"
	"task-planner/internal/model"
	"task-planner/internal/service"
	"task-planner/internal/session"
)

const (
	cbStatusPrefix  = "status:"
	cbDeletePrefix  = "delete:"
	cbConfirmPrefix = "confirm:"
	cbCancelPrefix  = "cancel:"

	dateLayout   = "2006-01-02"
	shortIDLen   = 8
	minIDPrefix  = 4
	maxListItems = 30
)

var errAmbiguousID = errors.New("ambiguous task id")

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Task entry cancelled.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		b.log.WithFields(logrus.Fields{"user": msg.From.ID, "command": msg.Command()}).Info("command")
		return b.handleCommand(ctx, msg)
	}

	if state := b.getConversation(msg.From.ID); state != nil {
		return b.handleConversation(ctx, msg, state)
	}

	return b.sendText(msg.Chat.ID, "I didn't get that. Send /new to add a task or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.sendText(msg.Chat.ID, helpText)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "new":
		return b.startNewTaskConversation(ctx, msg)
	case "status":
		return b.handleStatus(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "subtasks":
		return b.handleSubtasks(ctx, msg)
	case "filter":
		return b.handleFilter(ctx, msg)
	case "clear":
		return b.handleClearFilter(ctx, msg)
	case "digest":
		return b.handleDigest(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Task entry cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

const helpText = "ℹ️ <b>Commands</b>\n" +
	"• /new — add a task step by step\n" +
	"• /tasks — list tasks through the active filter\n" +
	"• /status &lt;id&gt; &lt;upcoming|ongoing|completed&gt; — change a status\n" +
	"• /delete &lt;id&gt; — delete a task and its sub-tasks\n" +
	"• /subtasks &lt;id&gt; — show a task's sub-tasks\n" +
	"• /filter priority|status|due &lt;value&gt; — toggle a filter\n" +
	"• /clear — reset all filters\n" +
	"• /digest — overdue, today and this week at a glance\n" +
	"• /cancel — abort the current input\n\n" +
	"Ids can be shortened to their first characters, e.g. /delete 3f2a9c1b."

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, _, err := b.ensureSession(ctx, msg.From, msg.Chat.ID); err != nil {
		return err
	}
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("👋 Hi, %s!\n<b>I keep your tasks and sub-tasks in order.</b>\n\n%s", html.EscapeString(name), helpText))
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	switch strings.TrimSpace(strings.ToLower(msg.Text)) {
	case strings.ToLower(menuLabelNewTask):
		return true, b.startNewTaskConversation(ctx, msg)
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelDigest):
		return true, b.handleDigest(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.sendText(msg.Chat.ID, helpText)
	default:
		return false, nil
	}
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, _, err := b.ensureSession(ctx, msg.From, msg.Chat.ID); err != nil {
		return err
	}
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what should it be called?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "The title can't be empty. What should the task be called?", cancelKeyboard())
		}
		state.draft.Title = text
		state.stage = stageDueDate
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Due date as <code>2025-11-30</code> (or «Skip»).", skipKeyboard())
	case stageDueDate:
		if !isSkipInput(text) {
			due, err := time.Parse(dateLayout, text)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Can't read that date. Use <code>2025-11-30</code> or «Skip».", skipKeyboard())
			}
			state.draft.DueDate = &due
		}
		state.stage = stagePriority
		return b.sendWithReplyMarkup(msg.Chat.ID, "🎯 Priority? (Medium if skipped)", priorityKeyboard())
	case stagePriority:
		if !isSkipInput(text) {
			p, ok := model.ParsePriority(text)
			if !ok {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Pick Low, Medium or High.", priorityKeyboard())
			}
			state.draft.Priority = p
		}
		state.stage = stageSubtasks
		return b.sendWithReplyMarkup(msg.Chat.ID, "🧩 Sub-tasks, one per line (or «Skip»).", skipKeyboard())
	case stageSubtasks:
		if !isSkipInput(text) {
			state.subtasks = strings.Split(text, "\n")
		}
		b.clearConversation(msg.From.ID)
		return b.finishTaskCreation(ctx, msg, state)
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Input reset. Start again with /new.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	_, sess, err := b.ensureSession(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}

	// Failures reach the chat as a notice.
	task, err := sess.Store.CreateWithSubtasks(ctx, state.draft, state.subtasks)
	if err != nil {
		return b.sendText(msg.Chat.ID, "🔹 Main menu")
	}

	var summary strings.Builder
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> <code>%s</code>\n", shortID(task.ID)))
	summary.WriteString(fmt.Sprintf("• <b>Priority:</b> %s\n", task.Priority))
	if task.DueDate != nil {
		summary.WriteString(fmt.Sprintf("• <b>Due:</b> %s\n", task.DueDate.Format(dateLayout)))
	}
	for _, st := range task.SubTasks {
		summary.WriteString(fmt.Sprintf("   ▫️ %s\n", html.EscapeString(st.Title)))
	}
	if err := b.sendText(msg.Chat.ID, strings.TrimSpace(summary.String())); err != nil {
		return err
	}
	return b.sendTaskList(ctx, msg.Chat.ID, sess)
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	_, sess, err := b.ensureSession(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	return b.sendTaskList(ctx, msg.Chat.ID, sess)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, sess *session.Session) error {
	if err := sess.EnsureLoaded(ctx); err != nil {
		return nil
	}

	now := b.now()
	criteria := sess.Criteria()
	view := sess.View(now)

	if len(view) == 0 {
		if filter.HasActive(criteria) {
			return b.sendText(chatID, fmt.Sprintf("No tasks match <i>%s</i>. /clear resets the filter.", html.EscapeString(criteria.String())))
		}
		return b.sendText(chatID, "No tasks yet. Add one with /new.")
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Tasks</b>")
	if filter.HasActive(criteria) {
		builder.WriteString(fmt.Sprintf(" · <i>%s</i>", html.EscapeString(criteria.String())))
	}
	builder.WriteString("\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for i, task := range view {
		if i == maxListItems {
			builder.WriteString(fmt.Sprintf("…and %d more. Narrow the list with /filter.\n", len(view)-maxListItems))
			break
		}
		builder.WriteString(fmt.Sprintf("<code>%s</code> ", shortID(task.ID)))
		builder.WriteString(service.FormatTaskLine(task, now))
		switch {
		case sess.Store.IsDeleting(task.ID):
			builder.WriteString("   🗑 deleting…\n")
		case sess.Store.IsUpdating(task.ID):
			builder.WriteString("   ⏳ updating…\n")
		}
		buttons = append(buttons, taskButtons(task))
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		return b.sendText(msg.Chat.ID, "Usage: /status &lt;id&gt; &lt;upcoming|ongoing|completed&gt;")
	}
	status, ok := model.ParseStatus(args[1])
	if !ok {
		return b.sendText(msg.Chat.ID, "Status must be upcoming, ongoing or completed.")
	}

	_, sess, err := b.ensureSession(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	task, err := b.resolveTask(ctx, sess, args[0])
	if err != nil {
		return b.sendText(msg.Chat.ID, resolveErrorText(err))
	}
	if err := sess.Store.UpdateStatus(ctx, task.ID, status); err != nil {
		return nil
	}
	return b.sendTaskList(ctx, msg.Chat.ID, sess)
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		return b.sendText(msg.Chat.ID, "Give the task id: /delete 3f2a9c1b")
	}
	_, sess, err := b.ensureSession(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	task, err := b.resolveTask(ctx, sess, arg)
	if err != nil {
		return b.sendText(msg.Chat.ID, resolveErrorText(err))
	}
	return b.askDeleteConfirmation(msg.Chat.ID, task)
}

func (b *Bot) askDeleteConfirmation(chatID int64, task model.Task) error {
	text := fmt.Sprintf("Delete «%s» and its sub-tasks?", html.EscapeString(task.Title))
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard(task.ID))
}

func (b *Bot) handleSubtasks(ctx context.Context, msg *tgbotapi.Message) error {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		return b.sendText(msg.Chat.ID, "Give the task id: /subtasks 3f2a9c1b")
	}
	_, sess, err := b.ensureSession(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	task, err := b.resolveTask(ctx, sess, arg)
	if err != nil {
		return b.sendText(msg.Chat.ID, resolveErrorText(err))
	}
	subs, err := sess.Store.Subtasks(ctx, task.ID)
	if err != nil {
		b.log.WithError(err).WithField("task_id", task.ID).Warn("load sub-tasks")
		return b.sendText(msg.Chat.ID, "Couldn't load sub-tasks, try again later.")
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("🧩 <b>%s</b>\n", html.EscapeString(task.Title)))
	if len(subs) == 0 {
		builder.WriteString("— no sub-tasks")
	}
	for _, st := range subs {
		builder.WriteString(fmt.Sprintf("▫️ %s\n", html.EscapeString(st.Title)))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleFilter(ctx context.Context, msg *tgbotapi.Message) error {
	_, sess, err := b.ensureSession(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}

	args := strings.Fields(msg.CommandArguments())
	if len(args) < 2 {
		return b.sendText(msg.Chat.ID, fmt.Sprintf(
			"Active filter: <i>%s</i>\nToggle with /filter priority high, /filter status ongoing or /filter due this_week.",
			html.EscapeString(sess.Criteria().String())))
	}

	value := strings.Join(args[1:], " ")
	var toggle func(filter.Criteria) filter.Criteria
	switch strings.ToLower(args[0]) {
	case "priority":
		p, ok := model.ParsePriority(value)
		if !ok {
			return b.sendText(msg.Chat.ID, "Priority must be low, medium or high.")
		}
		toggle = func(c filter.Criteria) filter.Criteria { return c.TogglePriority(p) }
	case "status":
		st, ok := model.ParseStatus(value)
		if !ok {
			return b.sendText(msg.Chat.ID, "Status must be upcoming, ongoing or completed.")
		}
		toggle = func(c filter.Criteria) filter.Criteria { return c.ToggleStatus(st) }
	case "due":
		w, ok := filter.ParseDueWindow(value)
		if !ok || w == filter.WindowNone {
			names := make([]string, 0, len(filter.Windows))
			for _, win := range filter.Windows {
				names = append(names, string(win))
			}
			return b.sendText(msg.Chat.ID, "Due window must be one of: "+strings.Join(names, ", ")+".")
		}
		toggle = func(c filter.Criteria) filter.Criteria { return c.ToggleDueWindow(w) }
	default:
		return b.sendText(msg.Chat.ID, "Filter by priority, status or due.")
	}

	sess.UpdateCriteria(toggle)
	return b.sendTaskList(ctx, msg.Chat.ID, sess)
}

func (b *Bot) handleClearFilter(ctx context.Context, msg *tgbotapi.Message) error {
	_, sess, err := b.ensureSession(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	sess.SetCriteria(filter.Clear())
	return b.sendTaskList(ctx, msg.Chat.ID, sess)
}

func (b *Bot) handleDigest(ctx context.Context, msg *tgbotapi.Message) error {
	_, sess, err := b.ensureSession(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		return err
	}
	if err := sess.EnsureLoaded(ctx); err != nil {
		return nil
	}
	return b.sendText(msg.Chat.ID, b.digest.Build(sess.Store.Tasks(), b.now()))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data

	_, sess, err := b.ensureSession(ctx, cb.From, chatID)
	if err != nil {
		b.ackCallback(cb.ID, "")
		return err
	}

	switch {
	case strings.HasPrefix(data, cbStatusPrefix):
		b.ackCallback(cb.ID, "")
		id, raw, found := strings.Cut(strings.TrimPrefix(data, cbStatusPrefix), ":")
		status, ok := model.ParseStatus(raw)
		if !found || !ok {
			return nil
		}
		if err := sess.Store.UpdateStatus(ctx, id, status); err != nil {
			return nil
		}
		return b.sendTaskList(ctx, chatID, sess)
	case strings.HasPrefix(data, cbDeletePrefix):
		b.ackCallback(cb.ID, "")
		task, err := b.resolveTask(ctx, sess, strings.TrimPrefix(data, cbDeletePrefix))
		if err != nil {
			return b.sendText(chatID, resolveErrorText(err))
		}
		return b.askDeleteConfirmation(chatID, task)
	case strings.HasPrefix(data, cbConfirmPrefix):
		b.ackCallback(cb.ID, "")
		if err := sess.Store.DeleteTask(ctx, strings.TrimPrefix(data, cbConfirmPrefix)); err != nil {
			return nil
		}
		return b.sendTaskList(ctx, chatID, sess)
	case strings.HasPrefix(data, cbCancelPrefix):
		b.ackCallback(cb.ID, "Kept")
		return nil
	default:
		b.ackCallback(cb.ID, "")
		return nil
	}
}

// resolveTask finds a task in the session mirror by full id or by a unique
// prefix of at least minIDPrefix characters.
func (b *Bot) resolveTask(ctx context.Context, sess *session.Session, ref string) (model.Task, error) {
	if err := sess.EnsureLoaded(ctx); err != nil {
		return model.Task{}, err
	}
	ref = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ref), "#"))
	if task, ok := sess.Store.Task(ref); ok {
		return task, nil
	}
	if len(ref) < minIDPrefix {
		return model.Task{}, model.ErrNotFound
	}

	var match *model.Task
	for _, t := range sess.Store.Tasks() {
		if !strings.HasPrefix(t.ID, ref) {
			continue
		}
		if match != nil {
			return model.Task{}, errAmbiguousID
		}
		found := t
		match = &found
	}
	if match == nil {
		return model.Task{}, model.ErrNotFound
	}
	return *match, nil
}

func resolveErrorText(err error) string {
	switch {
	case errors.Is(err, errAmbiguousID):
		return "Several tasks start with that id, give more characters."
	case errors.Is(err, model.ErrNotFound):
		return "Task not found."
	default:
		return "Couldn't load tasks, try again later."
	}
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}
