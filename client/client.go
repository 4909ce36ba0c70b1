// Package client talks to a Baguette node over HTTP.
package client

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"

	"Baguette/internal/identity"
)

// Client connects to a Baguette node via HTTP.
type Client struct {
	baseURL string       // baseURL is the node URL, e.g. "http://127.0.0.1:8080"
	http    *http.Client // http performs the requests
}

// Wallet holds a keypair and signs transactions.
type Wallet struct {
	privKey ed25519.PrivateKey // privKey is the Ed25519 private key
	pubKey  ed25519.PublicKey  // pubKey is the Ed25519 public key
	clock   clockwork.Clock    // clock stamps nonces

	mu        sync.Mutex
	lastNonce uint64 // lastNonce keeps nonces strictly increasing
}

// ContestInfo is the state of one contest.
type ContestInfo struct {
	ID              uint64 `json:"id"`
	CommitmentCount int    `json:"commitmentCount"`
	WinnersLength   uint32 `json:"winnersLength"`
	Capacity        uint32 `json:"capacity"`
	State           string `json:"state"`
}

// Schedule is the reward table of the node.
type Schedule struct {
	Capacity        uint32
	PrizePerContest *uint256.Int
	Rewards         []*uint256.Int
}

// Event is one entry of the node's event log.
type Event struct {
	Seq             uint64           `json:"seq"`
	Kind            string           `json:"kind"`
	At              time.Time        `json:"at"`
	ContestID       uint64           `json:"contest"`
	CommitmentCount uint32           `json:"commitmentCount"`
	Solver          identity.Address `json:"solver"`
	Slot            uint32           `json:"slot"`
	Rank            uint32           `json:"rank"`
	Amount          *uint256.Int     `json:"-"`
}

// amountJSON mirrors the node's amount encoding.
type amountJSON struct {
	Tokens string `json:"tokens"`
	Wei    string `json:"wei"`
}

func (a amountJSON) value() (*uint256.Int, error) {
	if a.Wei == "" {
		return new(uint256.Int), nil
	}

	v, err := uint256.FromDecimal(a.Wei)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q:\n%w", a.Wei, err)
	}

	return v, nil
}

// NewClient creates a client for the node at addr.
// addr is a host:port or a full http(s) URL.
func NewClient(addr string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}

	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// NewWallet creates a new wallet with a random Ed25519 keypair.
func NewWallet() *Wallet {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	return WalletFromKey(priv)
}

// WalletFromKey wraps an existing private key.
func WalletFromKey(priv ed25519.PrivateKey) *Wallet {
	return &Wallet{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
		clock:   clockwork.NewRealClock(),
	}
}

// WithClock sets the clock used for nonces and returns the wallet.
func (w *Wallet) WithClock(clock clockwork.Clock) *Wallet {
	w.clock = clock
	return w
}

// Address returns the wallet identity.
func (w *Wallet) Address() identity.Address {
	var a identity.Address
	copy(a[:], w.pubKey)
	return a
}

// nextNonce returns the current unix milliseconds, bumped past the last nonce.
func (w *Wallet) nextNonce() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := uint64(w.clock.Now().UnixMilli())
	if n <= w.lastNonce {
		n = w.lastNonce + 1
	}
	w.lastNonce = n

	return n
}

// Contest returns the state of contest id.
func (c *Client) Contest(id uint64) (*ContestInfo, error) {
	var info ContestInfo

	if err := c.httpGet(fmt.Sprintf("/contests/%d", id), &info); err != nil {
		return nil, fmt.Errorf("get contest:\n%w", err)
	}

	return &info, nil
}

// ContestCount returns how many contests the node has started.
func (c *Client) ContestCount() (uint64, error) {
	var resp struct {
		Count uint64 `json:"count"`
	}

	if err := c.httpGet("/contests", &resp); err != nil {
		return 0, fmt.Errorf("get contest count:\n%w", err)
	}

	return resp.Count, nil
}

// WinnerAt returns the identity at rank in contest id.
func (c *Client) WinnerAt(id uint64, rank uint32) (identity.Address, error) {
	var resp struct {
		Winner identity.Address `json:"winner"`
	}

	if err := c.httpGet(fmt.Sprintf("/contests/%d/winners/%d", id, rank), &resp); err != nil {
		return identity.Address{}, fmt.Errorf("get winner:\n%w", err)
	}

	return resp.Winner, nil
}

// Winners returns every winner of contest id in rank order.
func (c *Client) Winners(id uint64) ([]identity.Address, error) {
	var resp struct {
		Winners []identity.Address `json:"winners"`
	}

	if err := c.httpGet(fmt.Sprintf("/contests/%d/winners", id), &resp); err != nil {
		return nil, fmt.Errorf("get winners:\n%w", err)
	}

	return resp.Winners, nil
}

// HasClaimed reports whether who already won contest id.
func (c *Client) HasClaimed(id uint64, who identity.Address) (bool, error) {
	var resp struct {
		Claimed bool `json:"claimed"`
	}

	if err := c.httpGet(fmt.Sprintf("/contests/%d/claims/%s", id, who), &resp); err != nil {
		return false, fmt.Errorf("get claim:\n%w", err)
	}

	return resp.Claimed, nil
}

// Balance returns the reward token balance of who.
func (c *Client) Balance(who identity.Address) (*uint256.Int, error) {
	return c.getAmount("/balances/" + who.String())
}

// Pool returns the remaining prize pool.
func (c *Client) Pool() (*uint256.Int, error) {
	return c.getAmount("/pool")
}

// Supply returns the total reward tokens issued.
func (c *Client) Supply() (*uint256.Int, error) {
	return c.getAmount("/supply")
}

// getAmount fetches an endpoint answering with a single amount.
func (c *Client) getAmount(path string) (*uint256.Int, error) {
	var resp amountJSON

	if err := c.httpGet(path, &resp); err != nil {
		return nil, fmt.Errorf("get %s:\n%w", path, err)
	}

	return resp.value()
}

// Schedule returns the reward schedule.
func (c *Client) Schedule() (*Schedule, error) {
	var resp struct {
		Capacity        uint32       `json:"capacity"`
		PrizePerContest amountJSON   `json:"prizePerContest"`
		Rewards         []amountJSON `json:"rewards"`
	}

	if err := c.httpGet("/schedule", &resp); err != nil {
		return nil, fmt.Errorf("get schedule:\n%w", err)
	}

	total, err := resp.PrizePerContest.value()
	if err != nil {
		return nil, err
	}

	s := &Schedule{Capacity: resp.Capacity, PrizePerContest: total}
	for _, r := range resp.Rewards {
		v, err := r.value()
		if err != nil {
			return nil, err
		}
		s.Rewards = append(s.Rewards, v)
	}

	return s, nil
}

// Events returns up to limit events starting at sequence from.
func (c *Client) Events(from uint64, limit int) ([]Event, error) {
	var resp struct {
		Events []struct {
			Event
			Amount *amountJSON `json:"amount"`
		} `json:"events"`
	}

	path := fmt.Sprintf("/events?from=%d", from)
	if limit > 0 {
		path += fmt.Sprintf("&limit=%d", limit)
	}

	if err := c.httpGet(path, &resp); err != nil {
		return nil, fmt.Errorf("get events:\n%w", err)
	}

	events := make([]Event, len(resp.Events))
	for i, raw := range resp.Events {
		events[i] = raw.Event

		if raw.Amount != nil {
			v, err := raw.Amount.value()
			if err != nil {
				return nil, err
			}
			events[i].Amount = v
		}
	}

	return events, nil
}
