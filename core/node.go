package core

import (
	"fmt"
	"log/slog"
	"math/big"

	"marketvault/core/events"
	"marketvault/core/state"
	"marketvault/core/types"
	"marketvault/native/market"
	"marketvault/storage"
)

// Node owns the storage backend and mediates every market operation. Each
// public mutation runs against a staged state overlay that commits as one
// atomic batch; a failure anywhere discards the overlay, so no partial effect
// ever reaches storage. Events are buffered alongside and published only
// after a successful commit.
type Node struct {
	db      storage.Database
	owner   types.Address
	emitter events.Emitter
	logger  *slog.Logger
}

// NodeOption customises node construction.
type NodeOption func(*Node)

// WithEmitter overrides the event emitter. The default logs events through
// the node's logger.
func WithEmitter(emitter events.Emitter) NodeOption {
	return func(n *Node) {
		if emitter != nil {
			n.emitter = emitter
		}
	}
}

// WithLogger overrides the node logger.
func WithLogger(logger *slog.Logger) NodeOption {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNode opens the market over db. On first boot it seeds genesis state: the
// contract owner (immutable thereafter) and a zeroed traded-volume counter per
// seed currency. On later boots the stored owner is authoritative; a non-zero
// owner argument that disagrees with it is rejected rather than silently
// ignored.
func NewNode(db storage.Database, owner types.Address, seedCurrencies []uint64, opts ...NodeOption) (*Node, error) {
	node := &Node{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(node)
	}
	if node.emitter == nil {
		node.emitter = events.LogEmitter{Logger: node.logger}
	}

	overlay := state.NewOverlay(db)
	mgr := state.NewManager(overlay)
	initialized, err := mgr.Initialized()
	if err != nil {
		return nil, err
	}
	if !initialized {
		if owner.IsZero() {
			return nil, fmt.Errorf("core: owner address required for genesis")
		}
		if err := mgr.SetOwner(owner); err != nil {
			return nil, err
		}
		for _, currency := range seedCurrencies {
			if err := mgr.SetTradedVolume(currency, big.NewInt(0)); err != nil {
				return nil, err
			}
		}
		if err := mgr.SetInitialized(); err != nil {
			return nil, err
		}
		if err := overlay.Commit(); err != nil {
			return nil, err
		}
		node.owner = owner
		node.logger.Info("market genesis complete", slog.String("owner", owner.String()), slog.Int("seedCurrencies", len(seedCurrencies)))
		return node, nil
	}

	stored, ok, err := mgr.Owner()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("core: state initialized but owner record missing")
	}
	if !owner.IsZero() && owner != stored {
		return nil, fmt.Errorf("core: configured owner %s does not match stored owner %s", owner, stored)
	}
	node.owner = stored
	return node, nil
}

// Owner returns the contract owner fixed at genesis.
func (n *Node) Owner() types.Address { return n.owner }

// run executes fn against a staged engine and commits on success.
func (n *Node) run(fn func(*market.Engine) error) error {
	overlay := state.NewOverlay(n.db)
	queue := events.NewQueue(n.emitter)
	engine := market.NewEngine(n.owner)
	engine.SetState(state.NewManager(overlay))
	engine.SetEmitter(queue)
	if err := fn(engine); err != nil {
		overlay.Discard()
		queue.Discard()
		return err
	}
	if err := overlay.Commit(); err != nil {
		queue.Discard()
		return err
	}
	queue.Flush()
	return nil
}

// view executes fn against a read-only engine bound directly to storage.
func (n *Node) view(fn func(*market.Engine) error) error {
	engine := market.NewEngine(n.owner)
	engine.SetState(state.NewManager(n.db))
	return fn(engine)
}

// SetAdmin assigns the custodian identity. Owner-only.
func (n *Node) SetAdmin(caller, admin types.Address) error {
	return n.run(func(e *market.Engine) error {
		return e.SetAdmin(caller, admin)
	})
}

// Admin returns the custodian identity, zero when unset.
func (n *Node) Admin() (types.Address, error) {
	var admin types.Address
	err := n.view(func(e *market.Engine) error {
		var inner error
		admin, inner = e.Admin()
		return inner
	})
	return admin, err
}

// RegisterDeposit credits a user's balance after an attested deposit.
// Admin-only.
func (n *Node) RegisterDeposit(caller types.Address, currency uint64, amount *big.Int, user types.Address) error {
	return n.run(func(e *market.Engine) error {
		return e.RegisterDeposit(caller, currency, amount, user)
	})
}

// RegisterNFTDeposit records attested token custody. Admin-only.
func (n *Node) RegisterNFTDeposit(caller types.Address, collection, token uint64, user types.Address) error {
	return n.run(func(e *market.Engine) error {
		return e.RegisterNFTDeposit(caller, collection, token, user)
	})
}

// Balance returns the account's quote balance, zero when absent.
func (n *Node) Balance(currency uint64, account types.Address) (*big.Int, error) {
	var balance *big.Int
	err := n.view(func(e *market.Engine) error {
		var inner error
		balance, inner = e.Balance(currency, account)
		return inner
	})
	return balance, err
}

// NFTDeposit returns the account a deposited token is held for.
func (n *Node) NFTDeposit(collection, token uint64) (types.Address, error) {
	var owner types.Address
	err := n.view(func(e *market.Engine) error {
		var inner error
		owner, inner = e.NFTDeposit(collection, token)
		return inner
	})
	return owner, err
}

// Withdraw debits the caller and enqueues a currency withdrawal intent.
func (n *Node) Withdraw(caller types.Address, currency uint64, amount *big.Int) (uint64, error) {
	var id uint64
	err := n.run(func(e *market.Engine) error {
		var inner error
		id, inner = e.Withdraw(caller, currency, amount)
		return inner
	})
	return id, err
}

// Ask lists a deposited token for sale and returns the new ask id.
func (n *Node) Ask(caller types.Address, collection, token, currency uint64, price *big.Int) (uint64, error) {
	var id uint64
	err := n.run(func(e *market.Engine) error {
		var inner error
		id, inner = e.Ask(caller, collection, token, currency, price)
		return inner
	})
	return id, err
}

// Cancel removes a live ask and queues the token back to its seller.
func (n *Node) Cancel(caller types.Address, collection, token uint64) error {
	return n.run(func(e *market.Engine) error {
		return e.Cancel(caller, collection, token)
	})
}

// Buy settles a live ask atomically.
func (n *Node) Buy(caller types.Address, collection, token uint64) error {
	return n.run(func(e *market.Engine) error {
		return e.Buy(caller, collection, token)
	})
}

// TradedVolume returns the cumulative traded amount for a currency.
func (n *Node) TradedVolume(currency uint64) (*big.Int, error) {
	var volume *big.Int
	err := n.view(func(e *market.Engine) error {
		var inner error
		volume, inner = e.TradedVolume(currency)
		return inner
	})
	return volume, err
}

// ResetTradedVolume zeroes a currency's traded-volume counter. Owner-only.
func (n *Node) ResetTradedVolume(caller types.Address, currency uint64) error {
	return n.run(func(e *market.Engine) error {
		return e.ResetTradedVolume(caller, currency)
	})
}

// LastAskID returns the most recently allocated ask id.
func (n *Node) LastAskID() (uint64, error) {
	var id uint64
	err := n.view(func(e *market.Engine) error {
		var inner error
		id, inner = e.LastAskID()
		return inner
	})
	return id, err
}

// AskByID returns the live ask with the given id.
func (n *Node) AskByID(id uint64) (*market.Ask, error) {
	var ask *market.Ask
	err := n.view(func(e *market.Engine) error {
		var inner error
		ask, inner = e.AskByID(id)
		return inner
	})
	return ask, err
}

// AskIDByToken resolves the live ask id for a (collection, token) pair.
func (n *Node) AskIDByToken(collection, token uint64) (uint64, error) {
	var id uint64
	err := n.view(func(e *market.Engine) error {
		var inner error
		id, inner = e.AskIDByToken(collection, token)
		return inner
	})
	return id, err
}

// LastWithdrawID returns the most recently issued currency withdrawal id.
func (n *Node) LastWithdrawID() (uint64, error) {
	var id uint64
	err := n.view(func(e *market.Engine) error {
		var inner error
		id, inner = e.LastWithdrawID()
		return inner
	})
	return id, err
}

// WithdrawByID returns the currency withdrawal with the given id.
func (n *Node) WithdrawByID(id uint64) (*market.CurrencyWithdrawal, error) {
	var w *market.CurrencyWithdrawal
	err := n.view(func(e *market.Engine) error {
		var inner error
		w, inner = e.WithdrawByID(id)
		return inner
	})
	return w, err
}

// LastNFTWithdrawID returns the most recently issued token withdrawal id.
func (n *Node) LastNFTWithdrawID() (uint64, error) {
	var id uint64
	err := n.view(func(e *market.Engine) error {
		var inner error
		id, inner = e.LastNFTWithdrawID()
		return inner
	})
	return id, err
}

// NFTWithdrawByID returns the token withdrawal with the given id.
func (n *Node) NFTWithdrawByID(id uint64) (*market.TokenWithdrawal, error) {
	var w *market.TokenWithdrawal
	err := n.view(func(e *market.Engine) error {
		var inner error
		w, inner = e.NFTWithdrawByID(id)
		return inner
	})
	return w, err
}
