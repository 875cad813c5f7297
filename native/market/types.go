package market

import (
	"fmt"
	"math/big"

	"marketvault/core/types"
)

// WithdrawCause records why a currency withdrawal intent was enqueued.
type WithdrawCause uint8

const (
	// WithdrawMatched marks proceeds owed to a seller after a settled sale.
	WithdrawMatched WithdrawCause = iota
	// WithdrawUnused marks a user-initiated withdrawal of idle balance.
	WithdrawUnused
)

// Valid reports whether the cause value is within the supported range.
func (c WithdrawCause) Valid() bool {
	switch c {
	case WithdrawMatched, WithdrawUnused:
		return true
	default:
		return false
	}
}

// String renders the cause for logs and RPC payloads.
func (c WithdrawCause) String() string {
	switch c {
	case WithdrawMatched:
		return "matched"
	case WithdrawUnused:
		return "unused"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// maxBalance caps ledger amounts at the 128-bit range used by the custodian's
// settlement rails. Credits beyond it are rejected as overflow.
var maxBalance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// MaxBalance returns the largest representable ledger amount.
func MaxBalance() *big.Int { return new(big.Int).Set(maxBalance) }

// Ask is a fixed-price offer to sell a specific deposited token. Placing an
// ask consumes the token's deposit record; the ask id is allocated from a
// monotonic counter and never reused.
type Ask struct {
	ID         uint64
	Collection uint64
	Token      uint64
	Currency   uint64
	Price      *big.Int
	Seller     types.Address
}

// Clone returns a deep copy of the ask so callers can safely mutate the copy
// without affecting the stored instance.
func (a *Ask) Clone() *Ask {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Price != nil {
		clone.Price = new(big.Int).Set(a.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// SanitizeAsk validates the supplied ask and returns a cloned instance with a
// non-nil price. The original value is not mutated.
func SanitizeAsk(a *Ask) (*Ask, error) {
	if a == nil {
		return nil, fmt.Errorf("nil ask")
	}
	if a.ID == 0 {
		return nil, fmt.Errorf("ask id must be positive")
	}
	clone := a.Clone()
	if clone.Price.Sign() < 0 {
		return nil, fmt.Errorf("ask price must be non-negative")
	}
	if clone.Price.Cmp(maxBalance) > 0 {
		return nil, fmt.Errorf("ask price exceeds balance range")
	}
	return clone, nil
}

// CurrencyWithdrawal is an append-only intent for the external custodian to
// release quote currency to an account. Entries are never mutated or deleted
// by the engine; the custodian tracks fulfilled ids on its side.
type CurrencyWithdrawal struct {
	ID      uint64
	Account types.Address
	Amount  *big.Int
	Cause   WithdrawCause
}

// Clone returns a deep copy of the withdrawal record.
func (w *CurrencyWithdrawal) Clone() *CurrencyWithdrawal {
	if w == nil {
		return nil
	}
	clone := *w
	if w.Amount != nil {
		clone.Amount = new(big.Int).Set(w.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// TokenWithdrawal is an append-only intent for the custodian to release a
// specific token back to an account.
type TokenWithdrawal struct {
	ID         uint64
	Account    types.Address
	Collection uint64
	Token      uint64
}

// Clone returns a copy of the withdrawal record.
func (w *TokenWithdrawal) Clone() *TokenWithdrawal {
	if w == nil {
		return nil
	}
	clone := *w
	return &clone
}

// CombinedTokenID folds a (collection, token) pair into the single identifier
// carried by Sold events: collection shifted left 32 bits plus the token id.
func CombinedTokenID(collection, token uint64) *big.Int {
	combined := new(big.Int).Lsh(new(big.Int).SetUint64(collection), 32)
	return combined.Add(combined, new(big.Int).SetUint64(token))
}
