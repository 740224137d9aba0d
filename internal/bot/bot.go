// Package bot is the Telegram front-end: commands and inline buttons mapped
// onto the owner's session, with every session notice echoed to the chat.
package bot

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"task-planner/internal/model"
	"task-planner/internal/notice"
	"task-planner/internal/repository"
	"task-planner/internal/service"
	"task-planner/internal/session"
	"task-planner/internal/taskstore"
)

// telegramAPI is the part of *tgbotapi.BotAPI the bot uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type conversationStage int

const (
	stageTitle conversationStage = iota + 1
	stageDueDate
	stagePriority
	stageSubtasks
)

type conversationState struct {
	stage    conversationStage
	draft    taskstore.Draft
	subtasks []string
}

// Bot aggregates the Telegram API with the session registry.
type Bot struct {
	api      telegramAPI
	users    *repository.UserRepository
	sessions *session.Registry
	digest   *service.DigestService
	log      *logrus.Entry
	now      func() time.Time

	mu            sync.Mutex
	conversations map[int64]*conversationState
	chats         map[string]int64
}

func New(token string, users *repository.UserRepository, sessions *session.Registry, digest *service.DigestService, log *logrus.Entry) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	b := newBot(api, users, sessions, digest, log)
	b.log.WithField("account", api.Self.UserName).Info("bot authorized")
	return b, nil
}

func newBot(api telegramAPI, users *repository.UserRepository, sessions *session.Registry, digest *service.DigestService, log *logrus.Entry) *Bot {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	b := &Bot{
		api:           api,
		users:         users,
		sessions:      sessions,
		digest:        digest,
		log:           log,
		now:           time.Now,
		conversations: make(map[int64]*conversationState),
		chats:         make(map[string]int64),
	}
	sessions.OnNotice(b.deliverNotice)
	return b
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if err := b.handleUpdate(ctx, update); err != nil {
			b.log.WithError(err).Warn("handle update")
		}
	}
	return ctx.Err()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	switch {
	case update.CallbackQuery != nil:
		return b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return nil
		}
		return b.handleMessage(ctx, update.Message)
	}
	return nil
}

// SendDigests refreshes every known user's tasks and sends the digest to
// users with something due.
func (b *Bot) SendDigests(ctx context.Context) error {
	users, err := b.users.ListAll(ctx)
	if err != nil {
		return err
	}
	now := b.now()
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		b.rememberChat(user.ID, user.TelegramID)
		sess := b.sessions.Get(user.ID)
		if err := sess.Store.LoadAll(ctx); err != nil && !sess.Store.Loaded() {
			continue
		}
		tasks := sess.Store.Tasks()
		if b.digest.Collect(tasks, now).Empty() {
			continue
		}
		if err := b.sendText(user.TelegramID, b.digest.Build(tasks, now)); err != nil {
			b.log.WithError(err).WithField("owner", user.ID).Warn("send digest")
		}
	}
	return nil
}

// deliverNotice sends a session notice to the owner's chat, if known.
func (b *Bot) deliverNotice(owner string, n notice.Notice) {
	b.mu.Lock()
	chatID, ok := b.chats[owner]
	b.mu.Unlock()
	if !ok {
		return
	}

	text := fmt.Sprintf("%s <b>%s</b>", noticeIcon(n.Kind), html.EscapeString(n.Title))
	if n.Message != "" {
		text += "\n" + html.EscapeString(n.Message)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableNotification = n.Kind == notice.KindSuccess
	if _, err := b.api.Send(msg); err != nil {
		b.log.WithError(err).WithField("owner", owner).Warn("deliver notice")
	}
}

// ensureSession registers the Telegram user and returns their session.
func (b *Bot) ensureSession(ctx context.Context, from *tgbotapi.User, chatID int64) (*model.User, *session.Session, error) {
	user, err := b.users.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
	if err != nil {
		return nil, nil, err
	}
	b.rememberChat(user.ID, chatID)
	return user, b.sessions.Get(user.ID), nil
}

func (b *Bot) rememberChat(owner string, chatID int64) {
	b.mu.Lock()
	b.chats[owner] = chatID
	b.mu.Unlock()
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func (b *Bot) sendText(chatID int64, text string) error {
	return b.sendWithReplyMarkup(chatID, text, mainMenuKeyboard())
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup any) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) ackCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.WithError(err).Debug("callback ack")
	}
}
