// Package nameservice reads a folder of wallet keys and creates a name
// service lookup for the wallet addresses.
package nameservice

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
)

// keyExt is the extension of the files holding a wallet private key.
const keyExt = ".ecdsa"

// NameService maintains a map of addresses for name lookup.
type NameService struct {
	names     map[string]string
	addresses map[string]string
}

// New constructs a name service with the wallets found under the root
// folder. A missing folder results in an empty name service.
func New(root string) (*NameService, error) {
	ns := NameService{
		names:     make(map[string]string),
		addresses: make(map[string]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && fileName == root {
				return filepath.SkipDir
			}
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != keyExt {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return err
		}

		address := database.PublicKeyToAddress(privateKey.PublicKey)
		name := strings.TrimSuffix(path.Base(fileName), keyExt)

		ns.names[address] = name
		ns.addresses[name] = address

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified address. The address itself
// is returned when there is no name for it.
func (ns *NameService) Lookup(address string) string {
	name, exists := ns.names[address]
	if !exists {
		return address
	}
	return name
}

// Resolve returns the address for a name. A value that is already an
// address is returned as is.
func (ns *NameService) Resolve(nameOrAddress string) (string, error) {
	if database.IsAddress(nameOrAddress) {
		return nameOrAddress, nil
	}

	address, exists := ns.addresses[nameOrAddress]
	if !exists {
		return "", fmt.Errorf("%w: unknown name %q", database.ErrInvalidAddress, nameOrAddress)
	}
	return address, nil
}

// Copy returns a copy of the map of addresses and names.
func (ns *NameService) Copy() map[string]string {
	cpy := make(map[string]string, len(ns.names))
	for address, name := range ns.names {
		cpy[address] = name
	}
	return cpy
}
