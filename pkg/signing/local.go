package signing

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-go-golems/concierge/pkg/mandate"
	"github.com/pkg/errors"
)

// LocalKeySigner signs typed data with an in-process secp256k1 key, producing
// the same 65 byte [R || S || V] signatures wallets return, with V in {27, 28}.
type LocalKeySigner struct {
	key     *ecdsa.PrivateKey
	chainID uint64
}

// NewLocalKeySigner parses a hex private key. A chainID of 0 accepts any chain.
func NewLocalKeySigner(hexKey string, chainID uint64) (*LocalKeySigner, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.Wrap(ErrNoProvider, "no private key configured")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "parsing private key")
	}
	return NewLocalKeySignerFromKey(key, chainID), nil
}

func NewLocalKeySignerFromKey(key *ecdsa.PrivateKey, chainID uint64) *LocalKeySigner {
	return &LocalKeySigner{key: key, chainID: chainID}
}

func (s *LocalKeySigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *LocalKeySigner) SignTypedData(ctx context.Context, m *mandate.CanonicalMandate) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m == nil {
		return "", errors.New("mandate is nil")
	}
	if s.chainID != 0 && m.Domain.ChainID != s.chainID {
		return "", errors.Wrapf(ErrChainMismatch, "signer is on chain %d, mandate is for chain %d", s.chainID, m.Domain.ChainID)
	}

	hash, err := m.Hash()
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return "", errors.Wrap(err, "signing mandate")
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverAddress returns the address that produced signature over m.
func RecoverAddress(m *mandate.CanonicalMandate, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "decoding signature")
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errors.Errorf("signature has %d bytes, want %d", len(sig), crypto.SignatureLength)
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	hash, err := m.Hash()
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "recovering public key")
	}
	return crypto.PubkeyToAddress(*pub), nil
}
