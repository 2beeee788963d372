package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	EnvPrivateKey           = "WAGENT_PRIVATE_KEY"
	EnvPrivateKeyFile       = "WAGENT_PRIVATE_KEY_FILE"
	EnvKeystorePath         = "WAGENT_KEYSTORE_PATH"
	EnvKeystorePassword     = "WAGENT_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "WAGENT_KEYSTORE_PASSWORD_FILE"

	defaultKeyFile = "wagent/key.hex"
	defaultKeyHint = "~/.config/wagent/key.hex"
)

// KeySource restricts where Load looks for the agent key.
type KeySource string

const (
	KeySourceAuto     KeySource = "auto"
	KeySourceEnv      KeySource = "env"
	KeySourceFile     KeySource = "file"
	KeySourceKeystore KeySource = "keystore"
)

var errNoKey = errors.New("no signing key")

// LocalSigner holds the key in process memory.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ Signer = (*LocalSigner)(nil)

func (s *LocalSigner) Address() common.Address { return s.address }

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("local signer is not initialized")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// SignMessage produces an EIP-191 personal_sign signature.
func (s *LocalSigner) SignMessage(message []byte) ([]byte, error) {
	return s.signDigest(accounts.TextHash(message))
}

// SignTypedData produces an EIP-712 signature over the typed data hash.
func (s *LocalSigner) SignTypedData(data apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	return s.signDigest(digest)
}

func (s *LocalSigner) signDigest(digest []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("local signer is not initialized")
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// FromHex builds a signer from a hex private key, with or without 0x.
func FromHex(raw string) (*LocalSigner, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, errors.New("empty private key")
	}
	key, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &LocalSigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Load finds the agent key in the environment. With KeySourceAuto the order is
// inline hex, key file (explicit, then ~/.config/wagent/key.hex), then keystore.
func Load(source string) (*LocalSigner, error) {
	src := KeySource(strings.ToLower(strings.TrimSpace(source)))
	if src == "" {
		src = KeySourceAuto
	}
	var loaders []func() (*LocalSigner, error)
	switch src {
	case KeySourceAuto:
		loaders = []func() (*LocalSigner, error){fromEnvHex, fromKeyFile, fromKeystore}
	case KeySourceEnv:
		loaders = []func() (*LocalSigner, error){fromEnvHex}
	case KeySourceFile:
		loaders = []func() (*LocalSigner, error){fromKeyFile}
	case KeySourceKeystore:
		loaders = []func() (*LocalSigner, error){fromKeystore}
	default:
		return nil, fmt.Errorf("unsupported key source %q (expected auto|env|file|keystore)", source)
	}
	for _, load := range loaders {
		s, err := load()
		if errors.Is(err, errNoKey) {
			continue
		}
		return s, err
	}
	return nil, fmt.Errorf("missing signing key: set %s, %s or %s, or write %s", EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath, defaultKeyHint)
}

func fromEnvHex() (*LocalSigner, error) {
	raw := strings.TrimSpace(os.Getenv(EnvPrivateKey))
	if raw == "" {
		return nil, errNoKey
	}
	return FromHex(raw)
}

func fromKeyFile() (*LocalSigner, error) {
	path := strings.TrimSpace(os.Getenv(EnvPrivateKeyFile))
	if path == "" {
		path = existingDefaultKeyFile()
	}
	if path == "" {
		return nil, errNoKey
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key file: %w", err)
	}
	return FromHex(string(buf))
}

func fromKeystore() (*LocalSigner, error) {
	path := strings.TrimSpace(os.Getenv(EnvKeystorePath))
	if path == "" {
		return nil, errNoKey
	}
	password := strings.TrimSpace(os.Getenv(EnvKeystorePassword))
	if pwFile := strings.TrimSpace(os.Getenv(EnvKeystorePasswordFile)); password == "" && pwFile != "" {
		buf, err := os.ReadFile(pwFile)
		if err != nil {
			return nil, fmt.Errorf("read keystore password file: %w", err)
		}
		password = strings.TrimSpace(string(buf))
	}
	if password == "" {
		return nil, errors.New("keystore password is required")
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}
	key, err := keystore.DecryptKey(buf, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return &LocalSigner{key: key.PrivateKey, address: key.Address}, nil
}

func defaultKeyPath() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, defaultKeyFile)
}

func existingDefaultKeyFile() string {
	path := defaultKeyPath()
	if path == "" {
		return ""
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}
