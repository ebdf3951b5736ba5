package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	require.NoError(t, err)

	assert.NotEqual(t, common.Address{}, signer.Address())
	assert.Len(t, signer.PrivateKeyHex(), 64)
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer1, err := GenerateKey()
	require.NoError(t, err)
	privHex := signer1.PrivateKeyHex()

	for _, in := range []string{privHex, "0x" + privHex} {
		signer2, err := FromPrivateKeyHex(in)
		require.NoError(t, err)
		assert.Equal(t, signer1.Address(), signer2.Address())
		assert.Equal(t, privHex, signer2.PrivateKeyHex())
	}

	_, err = FromPrivateKeyHex("not-a-key")
	assert.Error(t, err)
}

func TestSignAndRecover(t *testing.T) {
	signer, _ := GenerateKey()
	hash := eth_crypto.Keccak256([]byte("seed marketplace"))

	signature, err := signer.Sign(hash)
	require.NoError(t, err)
	require.Len(t, signature, 65)

	recovered, err := RecoverAddress(hash, signature)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)

	other, _ := GenerateKey()
	assert.NotEqual(t, other.Address(), recovered)
}

func TestRecoverWalletStyleV(t *testing.T) {
	signer, _ := GenerateKey()
	hash := eth_crypto.Keccak256([]byte("wallet"))

	signature, err := signer.Sign(hash)
	require.NoError(t, err)

	walletSig := append([]byte(nil), signature...)
	walletSig[64] += 27

	recovered, err := RecoverAddress(hash, walletSig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
	assert.Less(t, walletSig[64]-27, byte(2), "caller's slice untouched")
}

func TestInvalidSignature(t *testing.T) {
	signer, _ := GenerateKey()
	hash := common.BytesToHash([]byte("test")).Bytes()

	_, err := RecoverAddress(hash, []byte{1, 2, 3})
	assert.Error(t, err)
	_, err = RecoverAddress([]byte("short"), make([]byte, 65))
	assert.Error(t, err)

	_, err = signer.Sign([]byte("short"))
	assert.Error(t, err)
}
