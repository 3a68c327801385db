package crypto

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/google/uuid"
)

var (
	ErrNilOperatorKey  = errors.New("keystore: nil operator key")
	ErrEmptyKeystore   = errors.New("keystore: empty path")
	ErrWrongPassphrase = errors.New("keystore: wrong passphrase")
)

// Scrypt cost used when sealing the operator key. Tests lower these.
var (
	scryptN = keystore.StandardScryptN
	scryptP = keystore.StandardScryptP
)

// WriteOperatorKey seals key as a v3 keystore at path. The file is written
// beside its destination and renamed into place, so an existing operator key
// is never left half-written. Parent directories are created with 0700.
func WriteOperatorKey(path string, key *PrivateKey, passphrase string) error {
	if key == nil || key.PrivateKey == nil {
		return ErrNilOperatorKey
	}
	if path == "" {
		return ErrEmptyKeystore
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("keystore: key id: %w", err)
	}
	sealed, err := keystore.EncryptKey(&keystore.Key{
		Id:         id,
		Address:    key.PubKey().Address().Array(),
		PrivateKey: key.PrivateKey,
	}, passphrase, scryptN, scryptP)
	if err != nil {
		return fmt.Errorf("keystore: seal operator key: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("keystore: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("keystore: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("keystore: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("keystore: write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("keystore: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("keystore: install %s: %w", path, err)
	}
	return nil
}

// ReadOperatorKey opens the operator keystore at path. A bad passphrase is
// reported as ErrWrongPassphrase.
func ReadOperatorKey(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, ErrEmptyKeystore
	}
	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keystore: read operator key: %w", err)
	}
	opened, err := keystore.DecryptKey(sealed, passphrase)
	if errors.Is(err, keystore.ErrDecrypt) {
		return nil, fmt.Errorf("%w for %s", ErrWrongPassphrase, path)
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: open %s: %w", path, err)
	}
	return &PrivateKey{PrivateKey: opened.PrivateKey}, nil
}
