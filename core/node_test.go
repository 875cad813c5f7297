package core

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"marketvault/core/events"
	"marketvault/core/types"
	"marketvault/native/market"
	"marketvault/storage"
)

func testAddress(fill byte) types.Address {
	var addr types.Address
	copy(addr[:], bytes.Repeat([]byte{fill}, types.AddressLength))
	return addr
}

var (
	ownerAddr = testAddress(0x01)
	adminAddr = testAddress(0x02)
	aliceAddr = testAddress(0xA1)
	bobAddr   = testAddress(0xB1)
)

func newTestNode(t *testing.T) (*Node, storage.Database) {
	t.Helper()
	db := storage.NewMemDB()
	node, err := NewNode(db, ownerAddr, []uint64{2})
	require.NoError(t, err)
	require.NoError(t, node.SetAdmin(ownerAddr, adminAddr))
	return node, db
}

func TestGenesisSeedsVolumes(t *testing.T) {
	node, _ := newTestNode(t)

	volume, err := node.TradedVolume(2)
	require.NoError(t, err)
	require.Zero(t, volume.Sign())

	_, err = node.TradedVolume(3)
	require.ErrorIs(t, err, market.ErrNotFound)
}

func TestGenesisRequiresOwner(t *testing.T) {
	_, err := NewNode(storage.NewMemDB(), types.ZeroAddress, nil)
	require.Error(t, err)
}

func TestOwnerSurvivesRestart(t *testing.T) {
	db := storage.NewMemDB()
	_, err := NewNode(db, ownerAddr, []uint64{2})
	require.NoError(t, err)

	// Zero owner adopts the stored one.
	reopened, err := NewNode(db, types.ZeroAddress, nil)
	require.NoError(t, err)
	require.Equal(t, ownerAddr, reopened.Owner())

	// A conflicting owner is rejected, not silently replaced.
	_, err = NewNode(db, testAddress(0x09), nil)
	require.Error(t, err)
}

func TestAdminSurvivesRestart(t *testing.T) {
	db := storage.NewMemDB()
	node, err := NewNode(db, ownerAddr, nil)
	require.NoError(t, err)
	require.NoError(t, node.SetAdmin(ownerAddr, adminAddr))

	reopened, err := NewNode(db, ownerAddr, nil)
	require.NoError(t, err)
	admin, err := reopened.Admin()
	require.NoError(t, err)
	require.Equal(t, adminAddr, admin)
}

func TestFailedOperationLeavesNoTrace(t *testing.T) {
	node, _ := newTestNode(t)
	require.NoError(t, node.RegisterNFTDeposit(adminAddr, 7, 42, aliceAddr))
	_, err := node.Ask(aliceAddr, 7, 42, 3, big.NewInt(500))
	require.NoError(t, err)
	require.NoError(t, node.RegisterDeposit(adminAddr, 3, big.NewInt(499), bobAddr))

	require.ErrorIs(t, node.Buy(bobAddr, 7, 42), market.ErrInsufficientFunds)

	balance, err := node.Balance(3, bobAddr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(499), balance)

	ask, err := node.AskByID(1)
	require.NoError(t, err)
	require.Equal(t, aliceAddr, ask.Seller)

	last, err := node.LastWithdrawID()
	require.NoError(t, err)
	require.Zero(t, last)
	last, err = node.LastNFTWithdrawID()
	require.NoError(t, err)
	require.Zero(t, last)
}

type recordingEmitter struct {
	types []string
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.types = append(r.types, evt.EventType())
}

func TestEventsPublishOnlyAfterCommit(t *testing.T) {
	db := storage.NewMemDB()
	recorder := &recordingEmitter{}
	node, err := NewNode(db, ownerAddr, nil, WithEmitter(recorder))
	require.NoError(t, err)
	require.NoError(t, node.SetAdmin(ownerAddr, adminAddr))
	require.NoError(t, node.RegisterNFTDeposit(adminAddr, 7, 42, aliceAddr))

	_, err = node.Ask(bobAddr, 7, 42, 3, big.NewInt(500))
	require.ErrorIs(t, err, market.ErrUnauthorized)
	require.Empty(t, recorder.types)

	_, err = node.Ask(aliceAddr, 7, 42, 3, big.NewInt(500))
	require.NoError(t, err)
	require.Equal(t, []string{market.EventTypeAskPlaced}, recorder.types)
}

// Full custody lifecycle: deposit, withdraw, re-deposit an NFT, list, settle.
func TestMarketLifecycle(t *testing.T) {
	node, _ := newTestNode(t)

	// Admin attests a currency deposit; Alice pulls it straight back out.
	require.NoError(t, node.RegisterDeposit(adminAddr, 3, big.NewInt(1000), aliceAddr))
	id, err := node.Withdraw(aliceAddr, 3, big.NewInt(1000))
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	balance, err := node.Balance(3, aliceAddr)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	w, err := node.WithdrawByID(1)
	require.NoError(t, err)
	require.Equal(t, aliceAddr, w.Account)
	require.Equal(t, big.NewInt(1000), w.Amount)
	require.Equal(t, market.WithdrawUnused, w.Cause)

	// Alice lists a deposited token.
	require.NoError(t, node.RegisterNFTDeposit(adminAddr, 7, 42, aliceAddr))
	askID, err := node.Ask(aliceAddr, 7, 42, 3, big.NewInt(500))
	require.NoError(t, err)
	require.Equal(t, uint64(1), askID)
	_, err = node.NFTDeposit(7, 42)
	require.ErrorIs(t, err, market.ErrNotFound)

	// Bob buys it.
	require.NoError(t, node.RegisterDeposit(adminAddr, 3, big.NewInt(500), bobAddr))
	require.NoError(t, node.Buy(bobAddr, 7, 42))

	balance, err = node.Balance(3, bobAddr)
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	volume, err := node.TradedVolume(3)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500), volume)

	_, err = node.AskByID(1)
	require.ErrorIs(t, err, market.ErrNotFound)

	_, err = node.NFTWithdrawByID(2)
	require.Error(t, err)
	nftW, err := node.NFTWithdrawByID(1)
	require.NoError(t, err)
	require.Equal(t, bobAddr, nftW.Account)
	require.Equal(t, uint64(7), nftW.Collection)
	require.Equal(t, uint64(42), nftW.Token)

	curW, err := node.WithdrawByID(2)
	require.NoError(t, err)
	require.Equal(t, aliceAddr, curW.Account)
	require.Equal(t, big.NewInt(500), curW.Amount)
	require.Equal(t, market.WithdrawMatched, curW.Cause)
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	db := storage.NewMemDB()
	node, err := NewNode(db, ownerAddr, []uint64{2})
	require.NoError(t, err)
	require.NoError(t, node.SetAdmin(ownerAddr, adminAddr))
	require.NoError(t, node.RegisterDeposit(adminAddr, 3, big.NewInt(750), aliceAddr))

	reopened, err := NewNode(db, ownerAddr, []uint64{2})
	require.NoError(t, err)
	balance, err := reopened.Balance(3, aliceAddr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(750), balance)
}
