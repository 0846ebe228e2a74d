package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/gemcaller/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Candidate alerts, threaded gain reports & operator control
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   🚨 Alert per selected candidate (message id is the tracking handle)
//   🚀 Gain report as a reply to the original alert
//   🎛️ Operator commands (/status, /reset, /pause, /resume, /ping)
//
// ═══════════════════════════════════════════════════════════════════════════════

// ErrNotifyTimeout is returned when a send does not complete in time
var ErrNotifyTimeout = errors.New("telegram send timed out")

// Notifier delivers alerts and threaded follow-ups
type Notifier interface {
	SendAlert(ctx context.Context, sc types.ScoredCandidate) (string, error)
	SendFollowUp(ctx context.Context, handle string, entry types.TrackingEntry, current types.Candidate, gainPct decimal.Decimal) error
}

// Admin is the operator surface of the engine
type Admin interface {
	Status() types.Status
	Reset(ctx context.Context) error
	Pause()
	Resume()
}

// messenger is the subset of *tgbotapi.BotAPI the bot uses
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TelegramBot manages the Telegram interface
type TelegramBot struct {
	mu      sync.RWMutex
	api     messenger
	chatID  int64
	timeout time.Duration
	running bool
	stopCh  chan struct{}

	admin Admin
}

// NewTelegramBot creates a new Telegram bot
func NewTelegramBot(token string, chatID int64, timeout time.Duration) (*TelegramBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")

	return newTelegramBot(api, chatID, timeout), nil
}

func newTelegramBot(api messenger, chatID int64, timeout time.Duration) *TelegramBot {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramBot{
		api:     api,
		chatID:  chatID,
		timeout: timeout,
		stopCh:  make(chan struct{}),
	}
}

// SetAdmin wires the operator command handlers
func (b *TelegramBot) SetAdmin(admin Admin) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.admin = admin
}

// Start begins listening for commands
func (b *TelegramBot) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.commandLoop()
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.running = false
	close(b.stopCh)
	b.api.StopReceivingUpdates()
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// SendAlert posts a candidate alert and returns its message id as the handle
func (b *TelegramBot) SendAlert(ctx context.Context, sc types.ScoredCandidate) (string, error) {
	msg := tgbotapi.NewMessage(b.chatID, FormatAlert(sc))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	sent, err := b.sendCtx(ctx, msg)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(sent.MessageID), nil
}

// SendFollowUp posts a gain report as a reply to the alert identified by handle
func (b *TelegramBot) SendFollowUp(ctx context.Context, handle string, entry types.TrackingEntry, current types.Candidate, gainPct decimal.Decimal) error {
	msg := tgbotapi.NewMessage(b.chatID, FormatFollowUp(entry, current, gainPct))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	if id, err := strconv.Atoi(handle); err == nil && id > 0 {
		msg.ReplyToMessageID = id
		msg.AllowSendingWithoutReply = true
	} else {
		log.Warn().Str("handle", handle).Msg("Unusable message handle, sending gain report unthreaded")
	}

	_, err := b.sendCtx(ctx, msg)
	return err
}

// FormatAlert renders the alert text
func FormatAlert(sc types.ScoredCandidate) string {
	c := sc.Candidate
	var sb strings.Builder

	fmt.Fprintf(&sb, "🚨 *%s* — score *%d*\n", esc(c.Label()), sc.Score)
	sb.WriteString("━━━━━━━━━━━━━━━━━━━━\n\n")
	if c.Name != "" && c.Name != c.Symbol {
		fmt.Fprintf(&sb, "🏷️ %s\n", esc(c.Name))
	}
	fmt.Fprintf(&sb, "⛓️ Chain: *%s*", esc(c.Chain))
	if c.Venue != "" {
		fmt.Fprintf(&sb, " | %s", esc(c.Venue))
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "💰 MC: *%s* | Liq: *%s*\n", usd(c.MarketCapUSD), usd(c.LiquidityUSD))
	fmt.Fprintf(&sb, "📊 Vol 1h: *%s* | 24h: *%s*\n", usd(c.VolumeH1USD), usd(c.VolumeH24USD))
	if c.PriceChange.M5.Set || c.PriceChange.H1.Set {
		fmt.Fprintf(&sb, "📈 5m: *%s* | 1h: *%s*\n", pct(c.PriceChange.M5), pct(c.PriceChange.H1))
	}
	fmt.Fprintf(&sb, "🔁 Txns 1h: *%d* buys / *%d* sells\n", c.TxnsH1.Buys, c.TxnsH1.Sells)
	if c.SourceTag != "" {
		fmt.Fprintf(&sb, "📡 Source: %s\n", esc(c.SourceTag))
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "`%s`", c.Address)
	if c.URL != "" {
		fmt.Fprintf(&sb, "\n[Chart](%s)", c.URL)
	}
	return sb.String()
}

// FormatFollowUp renders the gain report text
func FormatFollowUp(entry types.TrackingEntry, current types.Candidate, gainPct decimal.Decimal) string {
	multiple := gainPct.Div(decimal.NewFromInt(100)).Add(decimal.NewFromInt(1))
	return fmt.Sprintf(`🚀 *%s* is up *+%s%%* (%sx)
━━━━━━━━━━━━━━━━━━━━

💰 MC: %s → *%s*
💧 Liq: %s → %s`,
		esc(entry.SymbolLabel), gainPct.StringFixed(1), multiple.StringFixed(2),
		usd(entry.EntryMarketCapUSD), usd(current.MarketCapUSD),
		usd(entry.EntryLiquidityUSD), usd(current.LiquidityUSD),
	)
}

// FormatStatus renders the /status reply
func FormatStatus(s types.Status, now time.Time) string {
	state := "🟢 RUNNING"
	if s.Paused {
		state = "⏸️ PAUSED"
	}
	return fmt.Sprintf(`📊 *SCANNER STATUS*
━━━━━━━━━━━━━━━━━━━━

%s
⏱️ Uptime: *%s*
🔔 Alerted: *%d*
👀 Tracking: *%d* (%d reported)
🔍 Last scan: %s
📈 Last track: %s
💾 Last save: %s`,
		state, since(s.StartedAt, now),
		s.Alerted, s.Tracking, s.Reported,
		ago(s.LastScan, now), ago(s.LastTrack, now), ago(s.LastSave, now),
	)
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat == nil || update.Message.Chat.ID != b.chatID {
				continue
			}

			b.handleCommand(update.Message)
		}
	}
}

func (b *TelegramBot) handleCommand(msg *tgbotapi.Message) {
	b.mu.RLock()
	admin := b.admin
	b.mu.RUnlock()

	cmd := strings.ToLower(msg.Command())

	switch cmd {
	case "start", "help":
		b.cmdHelp()
	case "ping":
		b.send("🏓 Pong!")
	case "status", "reset", "pause", "resume":
		if admin == nil {
			b.send("❌ Engine not ready")
			return
		}
		switch cmd {
		case "status":
			b.sendMarkdown(FormatStatus(admin.Status(), time.Now()))
		case "reset":
			b.cmdReset(admin)
		case "pause":
			admin.Pause()
			b.send("⏸️ Scanning paused")
			log.Info().Msg("Scanning paused via Telegram")
		case "resume":
			admin.Resume()
			b.send("▶️ Scanning resumed")
			log.Info().Msg("Scanning resumed via Telegram")
		}
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

func (b *TelegramBot) cmdHelp() {
	msg := `🤖 *GEMCALLER COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Scanner status
🧹 /reset — Clear alerted + tracked state
⏸️ /pause — Pause scanning
▶️ /resume — Resume scanning
🏓 /ping — Test connection`

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdReset(admin Admin) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if err := admin.Reset(ctx); err != nil {
		log.Error().Err(err).Msg("Reset via Telegram failed")
		b.send("❌ Reset cleared memory but saving failed, will retry")
		return
	}
	b.send("🧹 State cleared")
	log.Warn().Msg("State reset via Telegram")
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

// sendCtx bounds a send by ctx and the notify timeout
func (b *TelegramBot) sendCtx(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	type result struct {
		msg tgbotapi.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := b.api.Send(c)
		done <- result{m, err}
	}()

	select {
	case r := <-done:
		return r.msg, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return tgbotapi.Message{}, ErrNotifyTimeout
		}
		return tgbotapi.Message{}, ctx.Err()
	}
}

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// usd formats a dollar amount with K/M/B suffixes
func usd(v float64) string {
	d := decimal.NewFromFloat(types.NonNegative(v))
	switch {
	case d.GreaterThanOrEqual(decimal.NewFromInt(1_000_000_000)):
		return "$" + d.Div(decimal.NewFromInt(1_000_000_000)).StringFixed(2) + "B"
	case d.GreaterThanOrEqual(decimal.NewFromInt(1_000_000)):
		return "$" + d.Div(decimal.NewFromInt(1_000_000)).StringFixed(2) + "M"
	case d.GreaterThanOrEqual(decimal.NewFromInt(1_000)):
		return "$" + d.Div(decimal.NewFromInt(1_000)).StringFixed(1) + "K"
	}
	return "$" + d.StringFixed(0)
}

func pct(w types.Window) string {
	if !w.Set {
		return "n/a"
	}
	d := decimal.NewFromFloat(types.Finite(w.Pct))
	sign := "+"
	if d.IsNegative() {
		sign = ""
	}
	return sign + d.StringFixed(1) + "%"
}

func since(t, now time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return now.Sub(t).Round(time.Second).String()
}

func ago(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return since(t, now) + " ago"
}
