package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"crcmarket/core/types"
)

// PrivateKey wraps a secp256k1 private key used by admins and participants.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey wraps the corresponding public key.
type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey creates a fresh secp256k1 key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromBytes restores a key from its raw byte representation.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the raw byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

// PubKey returns the public half of the key.
func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the 20-byte account address for the key.
func (k *PublicKey) Address() types.Address {
	raw := ethcrypto.PubkeyToAddress(*k.PublicKey)
	var addr types.Address
	copy(addr[:], raw.Bytes())
	return addr
}

// DeriveContractAddress computes the address of a contract-like instance
// created by creator with the given sequence number, keccak-style.
func DeriveContractAddress(creator types.Address, nonce uint64) types.Address {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[7-i] = byte(nonce >> (8 * i))
	}
	digest := ethcrypto.Keccak256(creator[:], buf)
	var addr types.Address
	copy(addr[:], digest[12:])
	return addr
}
