package signer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer is the account an execution is bound to. Message and typed-data
// signatures are 65 bytes with v in {27, 28}.
type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
	SignMessage(message []byte) ([]byte, error)
	SignTypedData(data apitypes.TypedData) ([]byte, error)
}

// Split breaks a 65-byte signature into r, s and v, lifting a 0/1 recovery id to 27/28.
func Split(sig []byte) (r, s [32]byte, v uint8, err error) {
	if len(sig) != 65 {
		return r, s, 0, fmt.Errorf("unexpected signature length %d", len(sig))
	}
	copy(r[:], sig[:32])
	copy(s[:], sig[32:64])
	v = sig[64]
	if v < 27 {
		v += 27
	}
	return r, s, v, nil
}
