package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/gemcaller/types"
)

type fakeMessenger struct {
	mu     sync.Mutex
	sent   []tgbotapi.MessageConfig
	nextID int
	err    error
	delay  time.Duration
}

func (f *fakeMessenger) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	f.nextID++
	return tgbotapi.Message{MessageID: 100 + f.nextID}, nil
}

func (f *fakeMessenger) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeMessenger) StopReceivingUpdates() {}

func (f *fakeMessenger) last() tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeAdmin struct {
	status  types.Status
	resets  int
	paused  bool
	resetFn func() error
}

func (a *fakeAdmin) Status() types.Status { return a.status }
func (a *fakeAdmin) Pause()               { a.paused = true }
func (a *fakeAdmin) Resume()              { a.paused = false }
func (a *fakeAdmin) Reset(context.Context) error {
	a.resets++
	if a.resetFn != nil {
		return a.resetFn()
	}
	return nil
}

func command(text string, chatID int64) *tgbotapi.Message {
	end := len(text)
	for i, r := range text {
		if r == ' ' {
			end = i
			break
		}
	}
	return &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}},
	}
}

func sampleScored() types.ScoredCandidate {
	return types.ScoredCandidate{
		Score: 70,
		Candidate: types.Candidate{
			Identity:     "x",
			Address:      "X",
			Chain:        "solana",
			Venue:        "raydium",
			Symbol:       "GEM_X",
			Name:         "Gem X",
			URL:          "https://dexscreener.com/solana/x",
			SourceTag:    "dex_boost",
			LiquidityUSD: 20000,
			MarketCapUSD: 50000,
			VolumeH1USD:  5000,
			PriceChange:  types.PriceChange{H1: types.NewWindow(60)},
			TxnsH1:       types.TxnCounts{Buys: 120, Sells: 110},
		},
	}
}

func TestSendAlertReturnsMessageID(t *testing.T) {
	api := &fakeMessenger{}
	b := newTelegramBot(api, 7, time.Second)

	handle, err := b.SendAlert(context.Background(), sampleScored())
	require.NoError(t, err)
	assert.Equal(t, "101", handle)

	msg := api.last()
	assert.Equal(t, int64(7), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdown, msg.ParseMode)
	assert.Contains(t, msg.Text, `GEM\_X`)
	assert.Contains(t, msg.Text, "score *70*")
	assert.Contains(t, msg.Text, "$50.0K")
}

func TestSendAlertPropagatesError(t *testing.T) {
	api := &fakeMessenger{err: errors.New("flood")}
	b := newTelegramBot(api, 7, time.Second)

	_, err := b.SendAlert(context.Background(), sampleScored())
	assert.Error(t, err)
}

func TestSendAlertTimesOut(t *testing.T) {
	api := &fakeMessenger{delay: 200 * time.Millisecond}
	b := newTelegramBot(api, 7, 20*time.Millisecond)

	_, err := b.SendAlert(context.Background(), sampleScored())
	assert.ErrorIs(t, err, ErrNotifyTimeout)
}

func TestSendFollowUpRepliesToHandle(t *testing.T) {
	api := &fakeMessenger{}
	b := newTelegramBot(api, 7, time.Second)
	entry := types.TrackingEntry{SymbolLabel: "GEM", EntryMarketCapUSD: 50000, EntryLiquidityUSD: 20000}
	current := types.Candidate{MarketCapUSD: 150000, LiquidityUSD: 30000}

	err := b.SendFollowUp(context.Background(), "42", entry, current, decimal.NewFromInt(200))
	require.NoError(t, err)

	msg := api.last()
	assert.Equal(t, 42, msg.ReplyToMessageID)
	assert.Contains(t, msg.Text, "+200.0%")
	assert.Contains(t, msg.Text, "3.00x")
}

func TestSendFollowUpBadHandleStillSends(t *testing.T) {
	api := &fakeMessenger{}
	b := newTelegramBot(api, 7, time.Second)

	err := b.SendFollowUp(context.Background(), "", types.TrackingEntry{SymbolLabel: "GEM"}, types.Candidate{}, decimal.NewFromInt(150))
	require.NoError(t, err)
	assert.Zero(t, api.last().ReplyToMessageID)
}

func TestFormatAlertWithoutMomentum(t *testing.T) {
	sc := sampleScored()
	sc.Candidate.PriceChange = types.PriceChange{}
	sc.Candidate.URL = ""

	text := FormatAlert(sc)
	assert.NotContains(t, text, "5m:")
	assert.NotContains(t, text, "Chart")
	assert.Contains(t, text, "`X`")
}

func TestUSDFormatting(t *testing.T) {
	assert.Equal(t, "$950", usd(950))
	assert.Equal(t, "$12.3K", usd(12345))
	assert.Equal(t, "$1.50M", usd(1_500_000))
	assert.Equal(t, "$2.00B", usd(2_000_000_000))
	assert.Equal(t, "$0", usd(-5))
}

func TestCommandsFromOtherChatsIgnored(t *testing.T) {
	api := &fakeMessenger{}
	b := newTelegramBot(api, 7, time.Second)
	admin := &fakeAdmin{}
	b.SetAdmin(admin)

	updates := make(chan tgbotapi.Update, 1)
	b.api = &chanMessenger{fakeMessenger: api, updates: updates}
	b.Start()
	defer b.Stop()

	updates <- tgbotapi.Update{Message: command("/reset", 999)}
	time.Sleep(50 * time.Millisecond)

	assert.Zero(t, admin.resets)
}

type chanMessenger struct {
	*fakeMessenger
	updates chan tgbotapi.Update
}

func (c *chanMessenger) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.updates
}

func TestHandleCommands(t *testing.T) {
	api := &fakeMessenger{}
	b := newTelegramBot(api, 7, time.Second)
	admin := &fakeAdmin{status: types.Status{Alerted: 3, Tracking: 2, Reported: 1}}
	b.SetAdmin(admin)

	b.handleCommand(command("/status", 7))
	assert.Contains(t, api.last().Text, "Alerted: *3*")
	assert.Contains(t, api.last().Text, "Last scan: never")

	b.handleCommand(command("/pause", 7))
	assert.True(t, admin.paused)

	b.handleCommand(command("/resume", 7))
	assert.False(t, admin.paused)

	b.handleCommand(command("/reset", 7))
	assert.Equal(t, 1, admin.resets)
	assert.Contains(t, api.last().Text, "State cleared")

	admin.resetFn = func() error { return errors.New("disk full") }
	b.handleCommand(command("/reset", 7))
	assert.Contains(t, api.last().Text, "saving failed")

	b.handleCommand(command("/ping", 7))
	assert.Contains(t, api.last().Text, "Pong")

	b.handleCommand(command("/bogus", 7))
	assert.Contains(t, api.last().Text, "Unknown command")
}

func TestHandleCommandsWithoutAdmin(t *testing.T) {
	api := &fakeMessenger{}
	b := newTelegramBot(api, 7, time.Second)

	b.handleCommand(command("/status", 7))
	assert.Contains(t, api.last().Text, "not ready")
}

func TestFormatStatusPaused(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	text := FormatStatus(types.Status{Paused: true, StartedAt: now.Add(-time.Hour), LastScan: now.Add(-30 * time.Second)}, now)

	assert.Contains(t, text, "PAUSED")
	assert.Contains(t, text, "1h0m0s")
	assert.Contains(t, text, "30s ago")
}
