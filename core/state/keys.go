package state

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ownerKey             = []byte("market/owner")
	adminKey             = []byte("market/admin")
	genesisKey           = []byte("market/genesis")
	balancePrefix        = []byte("market/balance/")
	volumePrefix         = []byte("market/volume/")
	depositPrefix        = []byte("market/deposit/")
	askPrefix            = []byte("market/ask/")
	askIndexPrefix       = []byte("market/ask-index/")
	lastAskIDKey         = []byte("market/ask-last-id")
	withdrawPrefix       = []byte("market/withdraw/")
	lastWithdrawIDKey    = []byte("market/withdraw-last-id")
	nftWithdrawPrefix    = []byte("market/nft-withdraw/")
	lastNFTWithdrawIDKey = []byte("market/nft-withdraw-last-id")
)

func appendUint64(buf []byte, v uint64) []byte {
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], v)
	return append(buf, scratch[:]...)
}

func balanceStorageKey(currency uint64, account []byte) []byte {
	buf := appendUint64(append([]byte(nil), balancePrefix...), currency)
	buf = append(buf, account...)
	return ethcrypto.Keccak256(buf)
}

func volumeStorageKey(currency uint64) []byte {
	return ethcrypto.Keccak256(appendUint64(append([]byte(nil), volumePrefix...), currency))
}

func tokenStorageKey(prefix []byte, collection, token uint64) []byte {
	buf := appendUint64(append([]byte(nil), prefix...), collection)
	buf = appendUint64(buf, token)
	return ethcrypto.Keccak256(buf)
}

func idStorageKey(prefix []byte, id uint64) []byte {
	return ethcrypto.Keccak256(appendUint64(append([]byte(nil), prefix...), id))
}

func flatKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}
