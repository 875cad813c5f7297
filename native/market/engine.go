package market

import (
	"fmt"
	"math/big"

	"marketvault/core/events"
	"marketvault/core/types"
)

// State is the narrow persistence surface the engine operates on. The caller
// is expected to run each public operation against a staged view and commit
// only on success, so the engine itself performs no rollback. Every operation
// additionally orders its work validate-then-apply: once the first mutation is
// issued, no remaining step can fail a business check.
type State interface {
	// Ledger.
	QuoteBalance(currency uint64, account types.Address) (*big.Int, bool, error)
	SetQuoteBalance(currency uint64, account types.Address, amount *big.Int) error
	TradedVolume(currency uint64) (*big.Int, bool, error)
	SetTradedVolume(currency uint64, amount *big.Int) error

	// Access control.
	Admin() (types.Address, bool, error)
	SetAdmin(types.Address) error

	// Deposit registry.
	DepositOwner(collection, token uint64) (types.Address, bool, error)
	PutDeposit(collection, token uint64, owner types.Address) error
	RemoveDeposit(collection, token uint64) error

	// Ask book and reverse index.
	AskGet(id uint64) (*Ask, bool, error)
	AskPut(*Ask) error
	AskRemove(id uint64) error
	AskIDByToken(collection, token uint64) (uint64, bool, error)
	AskIndexPut(collection, token uint64, askID uint64) error
	AskIndexRemove(collection, token uint64) error
	LastAskID() (uint64, error)
	SetLastAskID(uint64) error

	// Withdrawal queues.
	WithdrawGet(id uint64) (*CurrencyWithdrawal, bool, error)
	WithdrawPut(*CurrencyWithdrawal) error
	LastWithdrawID() (uint64, error)
	SetLastWithdrawID(uint64) error
	NFTWithdrawGet(id uint64) (*TokenWithdrawal, bool, error)
	NFTWithdrawPut(*TokenWithdrawal) error
	LastNFTWithdrawID() (uint64, error)
	SetLastNFTWithdrawID(uint64) error
}

// Engine implements the custodial marketplace ledger: quote-currency balances,
// the deposit registry, the ask book and the atomic match algorithm. It is a
// pure state machine; durability and all-or-nothing commit are supplied by the
// surrounding node.
type Engine struct {
	state   State
	emitter events.Emitter
	owner   types.Address
}

// NewEngine creates a market engine with a no-op emitter. The owner identity
// is fixed for the lifetime of the engine and never reassignable.
func NewEngine(owner types.Address) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		owner:   owner,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Owner returns the contract owner identity.
func (e *Engine) Owner() types.Address { return e.owner }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: evt})
}

func (e *Engine) ensureState() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) ensureOwner(caller types.Address) error {
	if caller != e.owner {
		return ErrUnauthorized
	}
	return nil
}

// ensureAdmin rejects callers other than the configured admin. An unset admin
// (zero address) never authorizes anyone.
func (e *Engine) ensureAdmin(caller types.Address) error {
	admin, ok, err := e.state.Admin()
	if err != nil {
		return err
	}
	if !ok || admin.IsZero() || caller != admin {
		return ErrUnauthorized
	}
	return nil
}

func sanitizeAmount(amount *big.Int) (*big.Int, error) {
	if amount == nil {
		return big.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("market: negative amount")
	}
	if amount.Cmp(maxBalance) > 0 {
		return nil, ErrOverflow
	}
	return new(big.Int).Set(amount), nil
}

func (e *Engine) balanceOrZero(currency uint64, account types.Address) (*big.Int, error) {
	balance, ok, err := e.state.QuoteBalance(currency, account)
	if err != nil {
		return nil, err
	}
	if !ok || balance == nil {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// SetAdmin assigns the custodian identity allowed to attest deposits.
// Owner-only.
func (e *Engine) SetAdmin(caller, admin types.Address) error {
	if err := e.ensureState(); err != nil {
		return err
	}
	if err := e.ensureOwner(caller); err != nil {
		return err
	}
	return e.state.SetAdmin(admin)
}

// Admin returns the configured custodian identity, or the zero address when
// unset.
func (e *Engine) Admin() (types.Address, error) {
	if err := e.ensureState(); err != nil {
		return types.Address{}, err
	}
	admin, ok, err := e.state.Admin()
	if err != nil {
		return types.Address{}, err
	}
	if !ok {
		return types.ZeroAddress, nil
	}
	return admin, nil
}

// RegisterDeposit credits a user's quote balance after the custodian has taken
// real currency into custody. Admin-only.
func (e *Engine) RegisterDeposit(caller types.Address, currency uint64, amount *big.Int, user types.Address) error {
	if err := e.ensureState(); err != nil {
		return err
	}
	if err := e.ensureAdmin(caller); err != nil {
		return err
	}
	amt, err := sanitizeAmount(amount)
	if err != nil {
		return err
	}
	balance, err := e.balanceOrZero(currency, user)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(balance, amt)
	if next.Cmp(maxBalance) > 0 {
		return ErrOverflow
	}
	return e.state.SetQuoteBalance(currency, user, next)
}

// Balance returns the account's quote balance, zero when no ledger entry
// exists.
func (e *Engine) Balance(currency uint64, account types.Address) (*big.Int, error) {
	if err := e.ensureState(); err != nil {
		return nil, err
	}
	return e.balanceOrZero(currency, account)
}

// Withdraw debits the caller's balance and enqueues a currency withdrawal
// intent for the custodian. Returns the withdrawal id.
func (e *Engine) Withdraw(caller types.Address, currency uint64, amount *big.Int) (uint64, error) {
	if err := e.ensureState(); err != nil {
		return 0, err
	}
	return e.vaultWithdraw(caller, currency, amount, WithdrawUnused)
}

// vaultWithdraw moves balance out of the ledger and into the append-only
// withdrawal queue. The queue entry does not carry the currency id; the
// custodian resolves it from its own deposit records.
func (e *Engine) vaultWithdraw(account types.Address, currency uint64, amount *big.Int, cause WithdrawCause) (uint64, error) {
	amt, err := sanitizeAmount(amount)
	if err != nil {
		return 0, err
	}
	balance, err := e.balanceOrZero(currency, account)
	if err != nil {
		return 0, err
	}
	if balance.Cmp(amt) < 0 {
		return 0, ErrInsufficientFunds
	}
	lastID, err := e.state.LastWithdrawID()
	if err != nil {
		return 0, err
	}
	id := lastID + 1
	if err := e.state.SetQuoteBalance(currency, account, new(big.Int).Sub(balance, amt)); err != nil {
		return 0, err
	}
	if err := e.state.SetLastWithdrawID(id); err != nil {
		return 0, err
	}
	if err := e.state.WithdrawPut(&CurrencyWithdrawal{ID: id, Account: account, Amount: amt, Cause: cause}); err != nil {
		return 0, err
	}
	return id, nil
}

// LastWithdrawID returns the most recently issued currency withdrawal id,
// zero when none was issued yet.
func (e *Engine) LastWithdrawID() (uint64, error) {
	if err := e.ensureState(); err != nil {
		return 0, err
	}
	return e.state.LastWithdrawID()
}

// WithdrawByID returns the currency withdrawal with the given id.
func (e *Engine) WithdrawByID(id uint64) (*CurrencyWithdrawal, error) {
	if err := e.ensureState(); err != nil {
		return nil, err
	}
	w, ok, err := e.state.WithdrawGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return w, nil
}

// LastNFTWithdrawID returns the most recently issued token withdrawal id,
// zero when none was issued yet.
func (e *Engine) LastNFTWithdrawID() (uint64, error) {
	if err := e.ensureState(); err != nil {
		return 0, err
	}
	return e.state.LastNFTWithdrawID()
}

// NFTWithdrawByID returns the token withdrawal with the given id.
func (e *Engine) NFTWithdrawByID(id uint64) (*TokenWithdrawal, error) {
	if err := e.ensureState(); err != nil {
		return nil, err
	}
	w, ok, err := e.state.NFTWithdrawGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return w, nil
}

// RegisterNFTDeposit records custody of a token for a user. Admin-only. A
// repeated attestation for the same key overwrites the previous record: the
// custodian's last word wins.
func (e *Engine) RegisterNFTDeposit(caller types.Address, collection, token uint64, user types.Address) error {
	if err := e.ensureState(); err != nil {
		return err
	}
	if err := e.ensureAdmin(caller); err != nil {
		return err
	}
	return e.state.PutDeposit(collection, token, user)
}

// NFTDeposit returns the account a deposited token is held for.
func (e *Engine) NFTDeposit(collection, token uint64) (types.Address, error) {
	if err := e.ensureState(); err != nil {
		return types.Address{}, err
	}
	owner, ok, err := e.state.DepositOwner(collection, token)
	if err != nil {
		return types.Address{}, err
	}
	if !ok {
		return types.Address{}, ErrNotFound
	}
	return owner, nil
}

// Ask lists a deposited token for sale at a fixed price in the chosen quote
// currency. The deposit record is consumed; the seller recorded on the ask is
// the deposit owner even when the contract owner places it on their behalf.
// Returns the new ask id.
func (e *Engine) Ask(caller types.Address, collection, token, currency uint64, price *big.Int) (uint64, error) {
	if err := e.ensureState(); err != nil {
		return 0, err
	}
	depositOwner, ok, err := e.state.DepositOwner(collection, token)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotFound
	}
	if caller != e.owner && caller != depositOwner {
		return 0, ErrUnauthorized
	}
	lastID, err := e.state.LastAskID()
	if err != nil {
		return 0, err
	}
	ask, err := SanitizeAsk(&Ask{
		ID:         lastID + 1,
		Collection: collection,
		Token:      token,
		Currency:   currency,
		Price:      price,
		Seller:     depositOwner,
	})
	if err != nil {
		return 0, err
	}
	if err := e.state.RemoveDeposit(collection, token); err != nil {
		return 0, err
	}
	if err := e.state.SetLastAskID(ask.ID); err != nil {
		return 0, err
	}
	if err := e.state.AskPut(ask); err != nil {
		return 0, err
	}
	if err := e.state.AskIndexPut(collection, token, ask.ID); err != nil {
		return 0, err
	}
	e.emit(NewAskPlacedEvent(ask))
	return ask.ID, nil
}

// LastAskID returns the most recently allocated ask id, zero when no ask was
// ever placed.
func (e *Engine) LastAskID() (uint64, error) {
	if err := e.ensureState(); err != nil {
		return 0, err
	}
	return e.state.LastAskID()
}

// AskByID returns the live ask with the given id.
func (e *Engine) AskByID(id uint64) (*Ask, error) {
	if err := e.ensureState(); err != nil {
		return nil, err
	}
	ask, ok, err := e.state.AskGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return ask, nil
}

// AskIDByToken resolves the live ask id for a (collection, token) pair.
func (e *Engine) AskIDByToken(collection, token uint64) (uint64, error) {
	if err := e.ensureState(); err != nil {
		return 0, err
	}
	id, ok, err := e.state.AskIDByToken(collection, token)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

// resolveAsk loads the live ask for the key via the reverse index. The index
// and the ask are created and destroyed together, so a dangling index entry is
// state corruption, not a caller error.
func (e *Engine) resolveAsk(collection, token uint64) (*Ask, error) {
	id, ok, err := e.state.AskIDByToken(collection, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	ask, ok, err := e.state.AskGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("market: ask index points at missing ask %d", id)
	}
	return ask, nil
}

func (e *Engine) removeAsk(ask *Ask) error {
	if err := e.state.AskIndexRemove(ask.Collection, ask.Token); err != nil {
		return err
	}
	return e.state.AskRemove(ask.ID)
}

// Cancel removes a live ask and queues the token back to its seller. Allowed
// for the seller and the contract owner.
func (e *Engine) Cancel(caller types.Address, collection, token uint64) error {
	if err := e.ensureState(); err != nil {
		return err
	}
	ask, err := e.resolveAsk(collection, token)
	if err != nil {
		return err
	}
	if caller != e.owner && caller != ask.Seller {
		return ErrUnauthorized
	}
	if err := e.removeAsk(ask); err != nil {
		return err
	}
	if _, err := e.enqueueNFTWithdraw(ask.Seller, collection, token); err != nil {
		return err
	}
	e.emit(NewAskCancelledEvent(ask))
	return nil
}

// Buy settles a live ask: the buyer's balance is debited, the seller is
// credited and immediately moved into the withdrawal queue, the ask and its
// reverse-index entry are removed, a token withdrawal to the buyer is
// enqueued, and the currency's traded volume grows by the price. All checks
// run before the first mutation so a failed buy leaves no trace.
func (e *Engine) Buy(caller types.Address, collection, token uint64) error {
	if err := e.ensureState(); err != nil {
		return err
	}
	ask, err := e.resolveAsk(collection, token)
	if err != nil {
		return err
	}
	price := ask.Price
	buyerBalance, err := e.balanceOrZero(ask.Currency, caller)
	if err != nil {
		return err
	}
	if buyerBalance.Cmp(price) < 0 {
		return ErrInsufficientFunds
	}
	sellerBalance, err := e.balanceOrZero(ask.Currency, ask.Seller)
	if err != nil {
		return err
	}
	if new(big.Int).Add(sellerBalance, price).Cmp(maxBalance) > 0 {
		return ErrOverflow
	}
	volume, ok, err := e.state.TradedVolume(ask.Currency)
	if err != nil {
		return err
	}
	if !ok || volume == nil {
		// First trade in this currency initializes the counter.
		volume = big.NewInt(0)
	}

	if err := e.state.SetQuoteBalance(ask.Currency, caller, new(big.Int).Sub(buyerBalance, price)); err != nil {
		return err
	}
	// Re-read the seller balance: when the buyer settles their own ask the
	// debit above already changed it.
	sellerBalance, err = e.balanceOrZero(ask.Currency, ask.Seller)
	if err != nil {
		return err
	}
	if err := e.state.SetQuoteBalance(ask.Currency, ask.Seller, new(big.Int).Add(sellerBalance, price)); err != nil {
		return err
	}
	if err := e.removeAsk(ask); err != nil {
		return err
	}
	if _, err := e.enqueueNFTWithdraw(caller, collection, token); err != nil {
		return err
	}
	if _, err := e.vaultWithdraw(ask.Seller, ask.Currency, price, WithdrawMatched); err != nil {
		return err
	}
	if err := e.state.SetTradedVolume(ask.Currency, new(big.Int).Add(volume, price)); err != nil {
		return err
	}
	e.emit(NewSoldEvent(ask, caller))
	return nil
}

func (e *Engine) enqueueNFTWithdraw(account types.Address, collection, token uint64) (uint64, error) {
	lastID, err := e.state.LastNFTWithdrawID()
	if err != nil {
		return 0, err
	}
	id := lastID + 1
	if err := e.state.SetLastNFTWithdrawID(id); err != nil {
		return 0, err
	}
	if err := e.state.NFTWithdrawPut(&TokenWithdrawal{ID: id, Account: account, Collection: collection, Token: token}); err != nil {
		return 0, err
	}
	return id, nil
}

// TradedVolume returns the cumulative traded amount for a currency. Absent
// counters report ErrNotFound; currencies are initialized at genesis seeding,
// by their first settled trade or by an owner reset.
func (e *Engine) TradedVolume(currency uint64) (*big.Int, error) {
	if err := e.ensureState(); err != nil {
		return nil, err
	}
	volume, ok, err := e.state.TradedVolume(currency)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if volume == nil {
		volume = big.NewInt(0)
	}
	return volume, nil
}

// ResetTradedVolume zeroes (and initializes) a currency's traded-volume
// counter. Owner-only.
func (e *Engine) ResetTradedVolume(caller types.Address, currency uint64) error {
	if err := e.ensureState(); err != nil {
		return err
	}
	if err := e.ensureOwner(caller); err != nil {
		return err
	}
	return e.state.SetTradedVolume(currency, big.NewInt(0))
}
