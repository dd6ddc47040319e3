package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 {
		return fmt.Errorf("chat id is required")
	}
	if err := b.wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// SendToTicket posts into the forum topic behind a ticket channel ref.
func (b *Bot) SendToTicket(ctx context.Context, channelRef, text string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	chatID, threadID, err := ParseTicketRef(channelRef)
	if err != nil {
		return err
	}
	if err := b.wait(ctx); err != nil {
		return err
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero64("message_thread_id", threadID)
	params.AddNonEmpty("text", text)
	if _, err := b.api.MakeRequest("sendMessage", params); err != nil {
		return fmt.Errorf("send ticket message: %w", err)
	}
	return nil
}

func (b *Bot) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if err := b.wait(ctx); err != nil {
		return err
	}

	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, int(messageID))); err != nil {
		return fmt.Errorf("delete telegram message: %w", err)
	}
	return nil
}

// Mute removes send rights until the given time. A zero until mutes forever.
func (b *Bot) Mute(ctx context.Context, communityID, userID int64, until time.Time) error {
	var untilDate int64
	if !until.IsZero() {
		untilDate = until.Unix()
	}
	if err := b.restrict(ctx, communityID, userID, mutedPermissions(), untilDate); err != nil {
		return fmt.Errorf("mute member: %w", err)
	}
	return nil
}

// Quarantine leaves text messages as the only thing the member can send.
func (b *Bot) Quarantine(ctx context.Context, communityID, userID int64) error {
	if err := b.restrict(ctx, communityID, userID, quarantinePermissions(), 0); err != nil {
		return fmt.Errorf("quarantine member: %w", err)
	}
	return nil
}

func (b *Bot) Restore(ctx context.Context, communityID, userID int64) error {
	if err := b.restrict(ctx, communityID, userID, memberPermissions(), 0); err != nil {
		return fmt.Errorf("restore member: %w", err)
	}
	return nil
}

func (b *Bot) restrict(ctx context.Context, chatID, userID int64, perms *tgbotapi.ChatPermissions, untilDate int64) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if err := b.wait(ctx); err != nil {
		return err
	}

	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		UntilDate:        untilDate,
		Permissions:      perms,
	}
	if _, err := b.api.Request(cfg); err != nil {
		return err
	}
	return nil
}

// CreateTicketChannel opens a forum topic in chatID and returns its ref.
func (b *Bot) CreateTicketChannel(ctx context.Context, chatID int64, title string) (string, error) {
	if b == nil || b.api == nil {
		return "", fmt.Errorf("telegram bot is not initialized")
	}
	if err := b.wait(ctx); err != nil {
		return "", err
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonEmpty("name", truncateTopicName(title))
	resp, err := b.api.MakeRequest("createForumTopic", params)
	if err != nil {
		return "", fmt.Errorf("create forum topic: %w", err)
	}

	var topic struct {
		MessageThreadID int64 `json:"message_thread_id"`
	}
	if err := json.Unmarshal(resp.Result, &topic); err != nil {
		return "", fmt.Errorf("decode forum topic: %w", err)
	}
	if topic.MessageThreadID == 0 {
		return "", fmt.Errorf("forum topic id is empty")
	}
	return FormatTicketRef(chatID, topic.MessageThreadID), nil
}

func (b *Bot) DeleteTicketChannel(ctx context.Context, channelRef string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	chatID, threadID, err := ParseTicketRef(channelRef)
	if err != nil {
		return err
	}
	if err := b.wait(ctx); err != nil {
		return err
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero64("message_thread_id", threadID)
	if _, err := b.api.MakeRequest("deleteForumTopic", params); err != nil {
		return fmt.Errorf("delete forum topic: %w", err)
	}
	return nil
}

func FormatTicketRef(chatID, threadID int64) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(threadID, 10)
}

func ParseTicketRef(ref string) (int64, int64, error) {
	chatPart, threadPart, ok := strings.Cut(strings.TrimSpace(ref), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid ticket ref %q", ref)
	}
	chatID, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil || chatID == 0 {
		return 0, 0, fmt.Errorf("invalid ticket ref %q", ref)
	}
	threadID, err := strconv.ParseInt(threadPart, 10, 64)
	if err != nil || threadID <= 0 {
		return 0, 0, fmt.Errorf("invalid ticket ref %q", ref)
	}
	return chatID, threadID, nil
}

func truncateTopicName(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return "ticket"
	}
	runes := []rune(title)
	if len(runes) > 128 {
		return string(runes[:128])
	}
	return title
}

func mutedPermissions() *tgbotapi.ChatPermissions {
	return &tgbotapi.ChatPermissions{}
}

func quarantinePermissions() *tgbotapi.ChatPermissions {
	return &tgbotapi.ChatPermissions{CanSendMessages: true}
}

func memberPermissions() *tgbotapi.ChatPermissions {
	return &tgbotapi.ChatPermissions{
		CanSendMessages:       true,
		CanSendMediaMessages:  true,
		CanSendPolls:          true,
		CanSendOtherMessages:  true,
		CanAddWebPagePreviews: true,
		CanInviteUsers:        true,
	}
}
