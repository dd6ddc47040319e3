package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
	"github.com/ivankudzin/tgapp/moderator/internal/pkg/ttlmap"
)

const (
	defaultRequestsPerSecond = 25
	defaultWorkers           = 8
	defaultAdminCacheTTL     = 5 * time.Minute
)

type Config struct {
	Token             string
	RequestsPerSecond float64
	Workers           int
	ForumChats        []int64
	AdminCacheTTL     time.Duration
}

type Bot struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	admins  *ttlmap.Map[string, bool]
	forums  map[int64]struct{}
	workers int
	logger  *zap.Logger
}

type CommandUpdate struct {
	ChatID    int64
	MessageID int64
	UserID    int64
	Username  string
	Command   string
	Args      string
	Private   bool
	IsAdmin   bool

	// ReplyUserID is the author of the message the command replied to, if any.
	ReplyUserID int64
}

type Handlers struct {
	OnMessage func(context.Context, model.ModerationEvent) error
	OnJoin    func(context.Context, model.MemberJoin) error
	OnCommand func(context.Context, CommandUpdate) error
}

func NewBot(cfg Config, logger *zap.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.AdminCacheTTL <= 0 {
		cfg.AdminCacheTTL = defaultAdminCacheTTL
	}

	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(cfg.Token))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}

	forums := make(map[int64]struct{}, len(cfg.ForumChats))
	for _, id := range cfg.ForumChats {
		forums[id] = struct{}{}
	}

	return &Bot{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1),
		admins:  ttlmap.New[string, bool](cfg.AdminCacheTTL),
		forums:  forums,
		workers: cfg.Workers,
		logger:  logger.With(zap.String("bot", api.Self.UserName)),
	}, nil
}

func (b *Bot) Username() string {
	if b == nil || b.api == nil {
		return ""
	}
	return b.api.Self.UserName
}

// Listen dispatches updates to handlers on a bounded pool. A handler error is logged and
// never stops the loop.
func (b *Bot) Listen(ctx context.Context, handlers Handlers) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updateCfg.AllowedUpdates = []string{"message", "chat_member"}
	updates := b.api.GetUpdatesChan(updateCfg)
	defer b.api.StopReceivingUpdates()

	var g errgroup.Group
	g.SetLimit(b.workers)
	defer func() { _ = g.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			g.Go(func() error {
				b.dispatch(ctx, update, handlers)
				return nil
			})
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update, handlers Handlers) {
	if update.ChatMember != nil && handlers.OnJoin != nil {
		if join, ok := b.memberJoin(update.ChatMember); ok {
			b.report("join", handlers.OnJoin(ctx, join))
		}
		return
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil || (msg.From == nil && msg.SenderChat == nil) {
		return
	}

	if msg.IsCommand() && handlers.OnCommand != nil && msg.From != nil {
		cmd := CommandUpdate{
			ChatID:    msg.Chat.ID,
			MessageID: int64(msg.MessageID),
			UserID:    msg.From.ID,
			Username:  msg.From.UserName,
			Command:   msg.Command(),
			Args:      strings.TrimSpace(msg.CommandArguments()),
			Private:   msg.Chat.IsPrivate(),
		}
		if reply := msg.ReplyToMessage; reply != nil && reply.From != nil {
			cmd.ReplyUserID = reply.From.ID
		}
		if !cmd.Private {
			cmd.IsAdmin = b.IsAdmin(ctx, msg.Chat.ID, msg.From.ID)
		}
		b.report("command", handlers.OnCommand(ctx, cmd))
		return
	}

	if handlers.OnMessage == nil || !(msg.Chat.IsGroup() || msg.Chat.IsSuperGroup()) {
		return
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	b.report("message", handlers.OnMessage(ctx, b.messageEvent(ctx, msg, text)))
}

func (b *Bot) messageEvent(ctx context.Context, msg *tgbotapi.Message, text string) model.ModerationEvent {
	ev := model.ModerationEvent{
		CommunityID: msg.Chat.ID,
		ChannelID:   msg.Chat.ID,
		ChannelKind: enums.ChannelKindText,
		MessageID:   int64(msg.MessageID),
		Text:        text,
		SentAt:      msg.Time(),
	}
	if _, ok := b.forums[msg.Chat.ID]; ok {
		ev.ChannelKind = enums.ChannelKindForum
	}

	// Anonymous admins post as the group itself.
	if msg.SenderChat != nil {
		ev.AuthorID = msg.SenderChat.ID
		ev.AuthorName = msg.SenderChat.Title
		ev.AuthorIsAdmin = msg.SenderChat.ID == msg.Chat.ID
		return ev
	}

	ev.AuthorID = msg.From.ID
	ev.AuthorName = displayName(msg.From)
	ev.AuthorCreatedAt = EstimateAccountCreation(msg.From.ID)
	ev.AuthorIsBot = msg.From.IsBot
	if !ev.AuthorIsBot {
		ev.AuthorIsAdmin = b.IsAdmin(ctx, msg.Chat.ID, msg.From.ID)
	}
	return ev
}

func (b *Bot) memberJoin(upd *tgbotapi.ChatMemberUpdated) (model.MemberJoin, bool) {
	if upd.NewChatMember.User == nil || !joined(upd.OldChatMember.Status, upd.NewChatMember.Status) {
		return model.MemberJoin{}, false
	}
	user := upd.NewChatMember.User
	return model.MemberJoin{
		CommunityID:      upd.Chat.ID,
		UserID:           user.ID,
		Username:         displayName(user),
		IsBot:            user.IsBot,
		AccountCreatedAt: EstimateAccountCreation(user.ID),
		JoinedAt:         time.Unix(int64(upd.Date), 0).UTC(),
	}, true
}

// IsAdmin reports whether userID administers chatID. Lookup failures count as not admin.
func (b *Bot) IsAdmin(ctx context.Context, chatID, userID int64) bool {
	key := strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(userID, 10)
	if admin, ok := b.admins.Get(key); ok {
		return admin
	}
	if err := b.wait(ctx); err != nil {
		return false
	}

	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		b.logger.Debug("get chat member failed", zap.Int64("chat_id", chatID), zap.Int64("user_id", userID), zap.Error(err))
		return false
	}
	admin := member.IsAdministrator() || member.IsCreator()
	b.admins.Set(key, admin)
	return admin
}

// Purge drops expired admin lookups.
func (b *Bot) Purge() int {
	return b.admins.Purge()
}

func (b *Bot) wait(ctx context.Context) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait telegram rate limit: %w", err)
	}
	return nil
}

func (b *Bot) report(kind string, err error) {
	if err != nil {
		b.logger.Warn("update handler failed", zap.String("update", kind), zap.Error(err))
	}
}

func joined(oldStatus, newStatus string) bool {
	wasOut := oldStatus == "left" || oldStatus == "kicked" || oldStatus == ""
	isIn := newStatus == "member" || newStatus == "restricted"
	return wasOut && isIn
}

func displayName(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	if user.UserName != "" {
		return "@" + user.UserName
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}
