package custody

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// SimulatedGateway is an in-memory stand-in for the provider and the chain,
// used by the simulation and local development. It models the calls the real
// client makes, including latency and a configurable failure rate, and keeps
// per-address balances so insufficient-balance and retry flows can be
// exercised end to end.
type SimulatedGateway struct {
	mu          sync.Mutex
	balances    map[string]decimal.Decimal
	wallets     map[string]string // walletID -> address
	signers     map[string]bool
	seedBalance decimal.Decimal

	MinLatency  time.Duration
	MaxLatency  time.Duration
	FailureRate float64 // 0-1, probability a transfer errors
}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{
		balances:    make(map[string]decimal.Decimal),
		wallets:     make(map[string]string),
		signers:     make(map[string]bool),
		seedBalance: decimal.NewFromInt(1000),
		MinLatency:  5 * time.Millisecond,
		MaxLatency:  40 * time.Millisecond,
	}
}

// BindWallet associates a provider wallet id with its on-chain address so
// Transfer can debit the right balance.
func (g *SimulatedGateway) BindWallet(walletID, address string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wallets[walletID] = address
}

// SetBalance overrides an address's balance.
func (g *SimulatedGateway) SetBalance(address string, balance decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[address] = balance
}

func (g *SimulatedGateway) BalanceOf(ctx context.Context, address string) (decimal.Decimal, error) {
	g.sleep(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balanceLocked(address), nil
}

func (g *SimulatedGateway) Transfer(ctx context.Context, walletID, toAddress string, amount decimal.Decimal) (string, error) {
	g.sleep(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()

	from, ok := g.wallets[walletID]
	if !ok {
		return "", fmt.Errorf("unknown wallet %s", walletID)
	}
	if !g.signers[walletID] {
		return "", fmt.Errorf("wallet %s has no authorized signer", walletID)
	}
	if g.FailureRate > 0 && rand.Float64() < g.FailureRate {
		return "", fmt.Errorf("simulated provider outage")
	}

	balance := g.balanceLocked(from)
	if balance.LessThan(amount) {
		return "", fmt.Errorf("transfer reverted: insufficient funds")
	}
	g.balances[from] = balance.Sub(amount)
	g.balances[toAddress] = g.balanceLocked(toAddress).Add(amount)

	txHash := fmt.Sprintf("0x%064x", rand.Uint64())
	log.Debug().
		Str("from", from).
		Str("to", toAddress).
		Str("amount", amount.String()).
		Str("tx_hash", txHash).
		Msg("simulated transfer")
	return txHash, nil
}

func (g *SimulatedGateway) RegisterSigner(ctx context.Context, walletID string) error {
	g.sleep(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.signers[walletID] = true
	return nil
}

func (g *SimulatedGateway) balanceLocked(address string) decimal.Decimal {
	if b, ok := g.balances[address]; ok {
		return b
	}
	return g.seedBalance
}

func (g *SimulatedGateway) sleep(ctx context.Context) {
	if g.MaxLatency <= 0 {
		return
	}
	span := g.MaxLatency - g.MinLatency
	d := g.MinLatency
	if span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
