// Package telegram sends arbitrage notifications through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/arbscout/internal/logger"
	"github.com/rewired-gh/arbscout/internal/models"
)

// topLimit caps how many opportunities /top lists.
const topLimit = 3

// OpportunitySource provides the current opportunities for bot commands.
type OpportunitySource interface {
	Latest() []models.Opportunity
}

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and
// answers bot commands. It returns immediately; the goroutine stops when ctx
// is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, source OpportunitySource) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message, source)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message, source OpportunitySource) {
	var reply tgbotapi.MessageConfig
	switch msg.Command() {
	case "ping":
		reply = tgbotapi.NewMessage(msg.Chat.ID, "Pong")
	case "top":
		reply = tgbotapi.NewMessage(msg.Chat.ID, formatTop(source.Latest(), topLimit))
		reply.ParseMode = tgbotapi.ModeMarkdownV2
	default:
		return
	}
	if _, err := c.bot.Send(reply); err != nil {
		logger.Warn("Failed to answer /%s: %v", msg.Command(), err)
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Monitoring error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Monitoring recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// Send notifies the chat about opps.
func (c *Client) Send(opps []models.Opportunity, detectedAt time.Time) error {
	return c.sendMarkdownV2(formatMessage(opps, detectedAt))
}

func formatMessage(opps []models.Opportunity, detectedAt time.Time) string {
	var b strings.Builder
	b.WriteString("💰 *Arbitrage Opportunities*\n\n")
	fmt.Fprintf(&b, "📅 Detected: %s\n\n", escapeMarkdownV2(detectedAt.Format("2006-01-02 15:04:05")))

	for i, o := range opps {
		fmt.Fprintf(&b, "%d\\. %s\n", i+1, formatOpportunity(o))
		if o.League != "" {
			fmt.Fprintf(&b, "   🏆 %s\n", escapeMarkdownV2(o.League))
		}
		fmt.Fprintf(&b, "   Σ %s, profit %s on %s\n",
			escapeMarkdownV2(strconv.FormatFloat(o.ArbitragePercentage, 'f', 4, 64)),
			escapeMarkdownV2(strconv.FormatFloat(o.GuaranteedProfit, 'f', 0, 64)),
			escapeMarkdownV2(strconv.FormatFloat(o.TotalStake, 'f', 0, 64)),
		)

		for _, s := range o.Stakes {
			fmt.Fprintf(&b, "   🎯 %s @ %s \\(%s\\): stake %s\n",
				escapeMarkdownV2(s.Outcome),
				escapeMarkdownV2(strconv.FormatFloat(s.Odds, 'f', 2, 64)),
				escapeMarkdownV2(s.Bookmaker),
				escapeMarkdownV2(strconv.FormatFloat(s.Amount, 'f', 0, 64)),
			)
		}
		fmt.Fprintf(&b, "   🛡 %s, confidence %d/10\n\n", escapeMarkdownV2(string(o.RiskLevel)), o.ConfidenceScore)
	}

	return b.String()
}

// formatOpportunity renders the headline of one opportunity.
func formatOpportunity(o models.Opportunity) string {
	market := string(o.Market)
	if o.Market == models.MarketTypeOverUnder {
		market += " " + strconv.FormatFloat(o.Threshold, 'f', -1, 64)
	}
	profit := escapeMarkdownV2(fmt.Sprintf("%.2f%%", o.ProfitPercentage))
	return fmt.Sprintf("*%s vs %s* \\(%s\\) 📈 *%s*",
		escapeMarkdownV2(o.HomeTeam), escapeMarkdownV2(o.AwayTeam), escapeMarkdownV2(market), profit)
}

func formatTop(opps []models.Opportunity, limit int) string {
	if len(opps) == 0 {
		return "No open opportunities"
	}
	if len(opps) > limit {
		opps = opps[:limit]
	}
	var b strings.Builder
	for i, o := range opps {
		fmt.Fprintf(&b, "%d\\. %s\n", i+1, formatOpportunity(o))
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
