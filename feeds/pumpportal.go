package feeds

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/gemcaller/internal/metrics"
	"github.com/web3guy0/gemcaller/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PUMPPORTAL WEBSOCKET FEED
// ═══════════════════════════════════════════════════════════════════════════════
//
// Subscribes to new-token events and buffers mints between scan cycles.
// Fetch drains the buffer and resolves metrics through a Quoter; mints the
// quoter does not know yet are retried on the next cycles.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	SourcePumpPortal = "pumpportal"

	pumpReconnectDelay = 5 * time.Second
	pumpMaxTries       = 3
)

type pumpEvent struct {
	Mint   string `json:"mint"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	TxType string `json:"txType"`
}

type pendingMint struct {
	ref    types.TrackingRef
	name   string
	symbol string
	tries  int
}

// PumpPortal streams newly created Solana tokens
type PumpPortal struct {
	mu sync.Mutex

	wsURL     string
	quoter    Quoter
	maxBuffer int
	pending   []pendingMint
	queued    map[string]bool
	connected bool
	metrics   *metrics.Registry
}

// NewPumpPortal creates a new PumpPortal adapter
func NewPumpPortal(wsURL string, quoter Quoter, maxBuffer int, m *metrics.Registry) *PumpPortal {
	if maxBuffer <= 0 {
		maxBuffer = 200
	}
	return &PumpPortal{
		wsURL:     wsURL,
		quoter:    quoter,
		maxBuffer: maxBuffer,
		queued:    make(map[string]bool),
		metrics:   m,
	}
}

// Name returns the adapter identifier
func (p *PumpPortal) Name() string {
	return SourcePumpPortal
}

// Connected reports whether the stream is currently up
func (p *PumpPortal) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Run maintains the websocket connection until ctx is cancelled
func (p *PumpPortal) Run(ctx context.Context) {
	log.Info().Str("url", p.wsURL).Msg("📡 PumpPortal feed started")

	for {
		if err := p.session(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("PumpPortal disconnected, reconnecting...")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("PumpPortal feed stopped")
			return
		case <-time.After(pumpReconnectDelay):
		}
	}
}

// session runs one connection until it drops
func (p *PumpPortal) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, p.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"method": "subscribeNewToken"}); err != nil {
		return err
	}

	p.setConnected(true)
	defer p.setConnected(false)
	log.Info().Msg("🔌 PumpPortal connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		p.handleMessage(data)
	}
}

func (p *PumpPortal) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// handleMessage buffers create events; everything else is ignored
func (p *PumpPortal) handleMessage(data []byte) {
	var ev pumpEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	if ev.TxType != "" && ev.TxType != "create" {
		return
	}

	id := NormalizeIdentity("solana", ev.Mint)
	if id == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queued[id] {
		return
	}
	if len(p.pending) >= p.maxBuffer {
		dropped := p.pending[0]
		delete(p.queued, dropped.ref.Identity)
		p.pending = p.pending[1:]
	}
	p.pending = append(p.pending, pendingMint{
		ref:    types.TrackingRef{Identity: id, Address: ev.Mint, Chain: "solana"},
		name:   ev.Name,
		symbol: ev.Symbol,
	})
	p.queued[id] = true
}

// Fetch drains buffered mints and returns those the quoter could resolve
func (p *PumpPortal) Fetch(ctx context.Context) []types.Candidate {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	refs := make([]types.TrackingRef, len(batch))
	for i, m := range batch {
		refs[i] = m.ref
	}
	quotes := p.quoter.Lookup(ctx, refs)

	var out []types.Candidate
	var retry []pendingMint
	for _, m := range batch {
		c, ok := quotes[m.ref.Identity]
		if !ok {
			if m.tries+1 < pumpMaxTries {
				m.tries++
				retry = append(retry, m)
			}
			continue
		}
		if c.Symbol == "" {
			c.Symbol = m.symbol
		}
		if c.Name == "" {
			c.Name = m.name
		}
		c.SourceTag = SourcePumpPortal
		out = append(out, c)
	}

	p.mu.Lock()
	for _, m := range batch {
		delete(p.queued, m.ref.Identity)
	}
	for _, m := range retry {
		if len(p.pending) >= p.maxBuffer {
			break
		}
		p.pending = append(p.pending, m)
		p.queued[m.ref.Identity] = true
	}
	p.mu.Unlock()

	p.metrics.Candidates(p.Name(), len(out))
	return out
}
