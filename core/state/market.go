package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"marketvault/core/types"
	"marketvault/native/market"
)

// Manager persists the market engine's state as RLP-encoded records under
// keccak-hashed keys. It implements market.State. Run it over an Overlay to
// get per-invocation atomicity; over a bare Database it reads and writes
// directly.
type Manager struct {
	kv KV
}

// NewManager creates a state manager operating on the provided key-value view.
func NewManager(kv KV) *Manager {
	return &Manager{kv: kv}
}

func (m *Manager) getUint64(key []byte) (uint64, bool, error) {
	data, err := m.kv.Get(key)
	if err != nil {
		if IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	var value uint64
	if err := rlp.DecodeBytes(data, &value); err != nil {
		return 0, false, fmt.Errorf("state: decode counter: %w", err)
	}
	return value, true, nil
}

func (m *Manager) putUint64(key []byte, value uint64) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.kv.Put(key, encoded)
}

func (m *Manager) getBigInt(key []byte) (*big.Int, bool, error) {
	data, err := m.kv.Get(key)
	if err != nil {
		if IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(data, value); err != nil {
		return nil, false, fmt.Errorf("state: decode amount: %w", err)
	}
	return value, true, nil
}

func (m *Manager) putBigInt(key []byte, value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() < 0 {
		return fmt.Errorf("state: negative amount")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.kv.Put(key, encoded)
}

func (m *Manager) getAddress(key []byte) (types.Address, bool, error) {
	data, err := m.kv.Get(key)
	if err != nil {
		if IsNotFound(err) {
			return types.Address{}, false, nil
		}
		return types.Address{}, false, err
	}
	var addr types.Address
	if err := rlp.DecodeBytes(data, &addr); err != nil {
		return types.Address{}, false, fmt.Errorf("state: decode address: %w", err)
	}
	return addr, true, nil
}

func (m *Manager) putAddress(key []byte, addr types.Address) error {
	encoded, err := rlp.EncodeToBytes(addr)
	if err != nil {
		return err
	}
	return m.kv.Put(key, encoded)
}

// Owner returns the persisted contract owner, set once at genesis.
func (m *Manager) Owner() (types.Address, bool, error) {
	return m.getAddress(flatKey(ownerKey))
}

// SetOwner persists the contract owner. Called exactly once, at genesis.
func (m *Manager) SetOwner(owner types.Address) error {
	return m.putAddress(flatKey(ownerKey), owner)
}

// Initialized reports whether genesis seeding already ran.
func (m *Manager) Initialized() (bool, error) {
	return m.kv.Has(flatKey(genesisKey))
}

// SetInitialized marks genesis seeding as done.
func (m *Manager) SetInitialized() error {
	return m.putUint64(flatKey(genesisKey), 1)
}

// Admin returns the custodian identity, false when never assigned.
func (m *Manager) Admin() (types.Address, bool, error) {
	return m.getAddress(flatKey(adminKey))
}

// SetAdmin persists the custodian identity.
func (m *Manager) SetAdmin(admin types.Address) error {
	return m.putAddress(flatKey(adminKey), admin)
}

// QuoteBalance returns the stored balance for (currency, account).
func (m *Manager) QuoteBalance(currency uint64, account types.Address) (*big.Int, bool, error) {
	return m.getBigInt(balanceStorageKey(currency, account.Bytes()))
}

// SetQuoteBalance stores the balance for (currency, account).
func (m *Manager) SetQuoteBalance(currency uint64, account types.Address, amount *big.Int) error {
	return m.putBigInt(balanceStorageKey(currency, account.Bytes()), amount)
}

// TradedVolume returns the cumulative traded amount for a currency.
func (m *Manager) TradedVolume(currency uint64) (*big.Int, bool, error) {
	return m.getBigInt(volumeStorageKey(currency))
}

// SetTradedVolume stores the cumulative traded amount for a currency.
func (m *Manager) SetTradedVolume(currency uint64, amount *big.Int) error {
	return m.putBigInt(volumeStorageKey(currency), amount)
}

// DepositOwner returns the account a deposited token is held for.
func (m *Manager) DepositOwner(collection, token uint64) (types.Address, bool, error) {
	return m.getAddress(tokenStorageKey(depositPrefix, collection, token))
}

// PutDeposit records token custody for an account, overwriting any previous
// attestation.
func (m *Manager) PutDeposit(collection, token uint64, owner types.Address) error {
	return m.putAddress(tokenStorageKey(depositPrefix, collection, token), owner)
}

// RemoveDeposit deletes a deposit record.
func (m *Manager) RemoveDeposit(collection, token uint64) error {
	return m.kv.Delete(tokenStorageKey(depositPrefix, collection, token))
}

type storedAsk struct {
	ID         uint64
	Collection uint64
	Token      uint64
	Currency   uint64
	Price      *big.Int
	Seller     types.Address
}

// AskGet returns the ask stored under id.
func (m *Manager) AskGet(id uint64) (*market.Ask, bool, error) {
	data, err := m.kv.Get(idStorageKey(askPrefix, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	stored := new(storedAsk)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, fmt.Errorf("state: decode ask: %w", err)
	}
	ask, err := market.SanitizeAsk(&market.Ask{
		ID:         stored.ID,
		Collection: stored.Collection,
		Token:      stored.Token,
		Currency:   stored.Currency,
		Price:      stored.Price,
		Seller:     stored.Seller,
	})
	if err != nil {
		return nil, false, fmt.Errorf("state: corrupt ask %d: %w", id, err)
	}
	return ask, true, nil
}

// AskPut stores an ask under its id.
func (m *Manager) AskPut(ask *market.Ask) error {
	sanitized, err := market.SanitizeAsk(ask)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(&storedAsk{
		ID:         sanitized.ID,
		Collection: sanitized.Collection,
		Token:      sanitized.Token,
		Currency:   sanitized.Currency,
		Price:      sanitized.Price,
		Seller:     sanitized.Seller,
	})
	if err != nil {
		return err
	}
	return m.kv.Put(idStorageKey(askPrefix, sanitized.ID), encoded)
}

// AskRemove deletes the ask stored under id.
func (m *Manager) AskRemove(id uint64) error {
	return m.kv.Delete(idStorageKey(askPrefix, id))
}

// AskIDByToken resolves the reverse index entry for a (collection, token) key.
func (m *Manager) AskIDByToken(collection, token uint64) (uint64, bool, error) {
	return m.getUint64(tokenStorageKey(askIndexPrefix, collection, token))
}

// AskIndexPut writes the reverse index entry for a (collection, token) key.
func (m *Manager) AskIndexPut(collection, token uint64, askID uint64) error {
	return m.putUint64(tokenStorageKey(askIndexPrefix, collection, token), askID)
}

// AskIndexRemove deletes the reverse index entry.
func (m *Manager) AskIndexRemove(collection, token uint64) error {
	return m.kv.Delete(tokenStorageKey(askIndexPrefix, collection, token))
}

// LastAskID returns the highest ask id issued so far, zero when none.
func (m *Manager) LastAskID() (uint64, error) {
	id, _, err := m.getUint64(flatKey(lastAskIDKey))
	return id, err
}

// SetLastAskID stores the ask id counter.
func (m *Manager) SetLastAskID(id uint64) error {
	return m.putUint64(flatKey(lastAskIDKey), id)
}

type storedCurrencyWithdrawal struct {
	ID      uint64
	Account types.Address
	Amount  *big.Int
	Cause   uint8
}

// WithdrawGet returns the currency withdrawal stored under id.
func (m *Manager) WithdrawGet(id uint64) (*market.CurrencyWithdrawal, bool, error) {
	data, err := m.kv.Get(idStorageKey(withdrawPrefix, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	stored := new(storedCurrencyWithdrawal)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, fmt.Errorf("state: decode withdrawal: %w", err)
	}
	cause := market.WithdrawCause(stored.Cause)
	if !cause.Valid() {
		return nil, false, fmt.Errorf("state: corrupt withdrawal %d: bad cause %d", id, stored.Cause)
	}
	amount := stored.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}
	return &market.CurrencyWithdrawal{ID: stored.ID, Account: stored.Account, Amount: amount, Cause: cause}, true, nil
}

// WithdrawPut appends a currency withdrawal record. Records are never
// mutated after insertion; the custodian consumes them by id.
func (m *Manager) WithdrawPut(w *market.CurrencyWithdrawal) error {
	if w == nil {
		return fmt.Errorf("state: nil withdrawal")
	}
	clone := w.Clone()
	encoded, err := rlp.EncodeToBytes(&storedCurrencyWithdrawal{
		ID:      clone.ID,
		Account: clone.Account,
		Amount:  clone.Amount,
		Cause:   uint8(clone.Cause),
	})
	if err != nil {
		return err
	}
	return m.kv.Put(idStorageKey(withdrawPrefix, clone.ID), encoded)
}

// LastWithdrawID returns the currency withdrawal id counter.
func (m *Manager) LastWithdrawID() (uint64, error) {
	id, _, err := m.getUint64(flatKey(lastWithdrawIDKey))
	return id, err
}

// SetLastWithdrawID stores the currency withdrawal id counter.
func (m *Manager) SetLastWithdrawID(id uint64) error {
	return m.putUint64(flatKey(lastWithdrawIDKey), id)
}

type storedTokenWithdrawal struct {
	ID         uint64
	Account    types.Address
	Collection uint64
	Token      uint64
}

// NFTWithdrawGet returns the token withdrawal stored under id.
func (m *Manager) NFTWithdrawGet(id uint64) (*market.TokenWithdrawal, bool, error) {
	data, err := m.kv.Get(idStorageKey(nftWithdrawPrefix, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	stored := new(storedTokenWithdrawal)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, fmt.Errorf("state: decode token withdrawal: %w", err)
	}
	return &market.TokenWithdrawal{ID: stored.ID, Account: stored.Account, Collection: stored.Collection, Token: stored.Token}, true, nil
}

// NFTWithdrawPut appends a token withdrawal record.
func (m *Manager) NFTWithdrawPut(w *market.TokenWithdrawal) error {
	if w == nil {
		return fmt.Errorf("state: nil token withdrawal")
	}
	encoded, err := rlp.EncodeToBytes(&storedTokenWithdrawal{
		ID:         w.ID,
		Account:    w.Account,
		Collection: w.Collection,
		Token:      w.Token,
	})
	if err != nil {
		return err
	}
	return m.kv.Put(idStorageKey(nftWithdrawPrefix, w.ID), encoded)
}

// LastNFTWithdrawID returns the token withdrawal id counter.
func (m *Manager) LastNFTWithdrawID() (uint64, error) {
	id, _, err := m.getUint64(flatKey(lastNFTWithdrawIDKey))
	return id, err
}

// SetLastNFTWithdrawID stores the token withdrawal id counter.
func (m *Manager) SetLastNFTWithdrawID(id uint64) error {
	return m.putUint64(flatKey(lastNFTWithdrawIDKey), id)
}
