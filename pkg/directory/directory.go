package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Layr-Labs/custody-web3-provider/pkg/clients/custody"
	"github.com/Layr-Labs/custody-web3-provider/pkg/providerErrors"
	"github.com/Layr-Labs/custody-web3-provider/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DiscoveryPageSize is how many vault accounts a lazy discovery pass inspects.
const DiscoveryPageSize = 20

// SharedPassTimeout bounds a load or discovery pass shared by concurrent callers.
const SharedPassTimeout = 2 * time.Minute

const (
	keyFixed     = "fixed"
	keyInitial   = "initial"
	keyWhitelist = "whitelist"
)

// IDirectory answers which vault account can sign for an address.
type IDirectory interface {
	ResolveSigner(ctx context.Context, address common.Address) (*types.VaultAccount, error)
	ListAddresses(ctx context.Context) ([]common.Address, error)
	ResolveDestination(ctx context.Context, address common.Address) (*Destination, error)
	Load(ctx context.Context) error
}

// Destination is a custody-side peer that owns an address.
type Destination struct {
	Type custody.TransferPeerPathType
	Id   string
}

type lookupState int32

const (
	lookupNotTried lookupState = iota
	lookupTried
)

type Config struct {
	AssetId           string
	VaultAccountIds   []string
	DiscoveryPageSize int
}

// Directory caches the address to vault account mapping for one provider instance.
type Directory struct {
	client   custody.ICustodyClient
	assetId  string
	fixedIds []string
	pageSize int
	logger   *zap.Logger

	group singleflight.Group

	// common.Address -> *types.VaultAccount, first writer wins
	owners sync.Map
	// lower-case hex address -> lookupState
	misses sync.Map
	// common.Address -> *Destination, populated from whitelisted wallets
	whitelisted sync.Map

	loaded          atomic.Bool
	whitelistLoaded atomic.Bool

	mu      sync.Mutex
	ordered []common.Address
}

func NewDirectory(cfg *Config, client custody.ICustodyClient, logger *zap.Logger) (*Directory, error) {
	if cfg == nil || cfg.AssetId == "" {
		return nil, fmt.Errorf("directory requires an asset id")
	}
	if client == nil {
		return nil, fmt.Errorf("directory requires a custody client")
	}
	pageSize := cfg.DiscoveryPageSize
	if pageSize <= 0 {
		pageSize = DiscoveryPageSize
	}
	return &Directory{
		client:   client,
		assetId:  cfg.AssetId,
		fixedIds: append([]string(nil), cfg.VaultAccountIds...),
		pageSize: pageSize,
		logger:   logger,
	}, nil
}

func (d *Directory) IsFixed() bool {
	return len(d.fixedIds) > 0
}

// ResolveSigner returns the vault account owning address.
// A fixed list that does not contain the address fails without discovery.
func (d *Directory) ResolveSigner(ctx context.Context, address common.Address) (*types.VaultAccount, error) {
	if err := d.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if account, ok := d.lookup(address); ok {
		return account, nil
	}
	if d.IsFixed() {
		return nil, unknownSigner(address)
	}

	key := strings.ToLower(address.Hex())
	err := d.shared(ctx, "miss:"+key, func(ctx context.Context) error {
		// the owner may have been found by a pass that finished while we waited
		if _, ok := d.lookup(address); ok {
			return nil
		}
		state, _ := d.misses.LoadOrStore(key, lookupNotTried)
		if state.(lookupState) == lookupTried {
			return nil
		}
		d.logger.Sugar().Debugw("Address not in directory, running discovery", "address", address.Hex())
		if err := d.discover(ctx); err != nil {
			return err
		}
		d.misses.Store(key, lookupTried)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if account, ok := d.lookup(address); ok {
		return account, nil
	}
	return nil, unknownSigner(address)
}

// ListAddresses returns every known address in discovery order.
func (d *Directory) ListAddresses(ctx context.Context) ([]common.Address, error) {
	if err := d.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]common.Address(nil), d.ordered...), nil
}

// ResolveDestination finds the custody peer for a destination address when one-time addresses are disabled.
// Vault accounts are checked first, then whitelisted internal wallets, external wallets and contracts.
func (d *Directory) ResolveDestination(ctx context.Context, address common.Address) (*Destination, error) {
	if err := d.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if account, ok := d.lookup(address); ok {
		return &Destination{Type: custody.PeerType_VaultAccount, Id: account.Id}, nil
	}

	if !d.whitelistLoaded.Load() {
		err := d.shared(ctx, keyWhitelist, func(ctx context.Context) error {
			if d.whitelistLoaded.Load() {
				return nil
			}
			if err := d.loadWhitelist(ctx); err != nil {
				return err
			}
			d.whitelistLoaded.Store(true)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if dest, ok := d.whitelisted.Load(address); ok {
		return dest.(*Destination), nil
	}
	return nil, fmt.Errorf("%w: no vault account or whitelisted wallet for destination %s", providerErrors.ErrInvalidParams, address.Hex())
}

func (d *Directory) lookup(address common.Address) (*types.VaultAccount, bool) {
	v, ok := d.owners.Load(address)
	if !ok {
		return nil, false
	}
	return v.(*types.VaultAccount), true
}

// Load runs the fixed-list load or the initial discovery pass if it has not completed yet.
func (d *Directory) Load(ctx context.Context) error {
	return d.ensureLoaded(ctx)
}

// ensureLoaded runs the fixed-list load or the initial discovery pass exactly once.
// A failed load is retried by the next caller.
func (d *Directory) ensureLoaded(ctx context.Context) error {
	if d.loaded.Load() {
		return nil
	}
	key := keyInitial
	if d.IsFixed() {
		key = keyFixed
	}
	return d.shared(ctx, key, func(ctx context.Context) error {
		if d.loaded.Load() {
			return nil
		}
		var err error
		if d.IsFixed() {
			err = d.loadFixed(ctx)
		} else {
			err = d.discover(ctx)
		}
		if err != nil {
			return err
		}
		d.loaded.Store(true)
		return nil
	})
}

// shared runs fn once for all concurrent callers of key. The pass is detached from any
// single caller's cancellation; each caller stops waiting when its own ctx is done.
func (d *Directory) shared(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	ch := d.group.DoChan(key, func() (interface{}, error) {
		passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SharedPassTimeout)
		defer cancel()
		return nil, fn(passCtx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Directory) loadFixed(ctx context.Context) error {
	for _, id := range d.fixedIds {
		if err := d.loadAccount(ctx, id); err != nil {
			return err
		}
	}
	d.logger.Sugar().Infow("Loaded fixed vault accounts", "count", len(d.fixedIds), "assetId", d.assetId)
	return nil
}

func (d *Directory) discover(ctx context.Context) error {
	accounts, err := d.client.ListVaultAccounts(ctx, d.assetId, d.pageSize)
	if err != nil {
		return fmt.Errorf("vault account discovery failed: %w", err)
	}
	for _, account := range accounts {
		if err := d.loadAccount(ctx, account.Id); err != nil {
			return err
		}
	}
	d.logger.Sugar().Debugw("Discovered vault accounts", "count", len(accounts), "assetId", d.assetId)
	return nil
}

func (d *Directory) loadAccount(ctx context.Context, id string) error {
	addresses, err := d.client.GetVaultAccountAddresses(ctx, id, d.assetId)
	if err != nil {
		return fmt.Errorf("failed to load addresses of vault account %s: %w", id, err)
	}

	account := &types.VaultAccount{Id: id}
	for _, a := range addresses {
		if !common.IsHexAddress(a.Address) {
			d.logger.Sugar().Warnw("Skipping non-EVM address", "vaultAccountId", id, "address", a.Address)
			continue
		}
		account.Addresses = append(account.Addresses, common.HexToAddress(a.Address))
	}

	for _, addr := range account.Addresses {
		existing, loaded := d.owners.LoadOrStore(addr, account)
		if loaded {
			if owner := existing.(*types.VaultAccount); owner.Id != id {
				d.logger.Sugar().Warnw("Address already owned by another vault account",
					"address", addr.Hex(), "owner", owner.Id, "vaultAccountId", id)
			}
			continue
		}
		d.mu.Lock()
		d.ordered = append(d.ordered, addr)
		d.mu.Unlock()
	}
	return nil
}

func (d *Directory) loadWhitelist(ctx context.Context) error {
	for _, walletType := range []custody.TransferPeerPathType{
		custody.PeerType_InternalWallet,
		custody.PeerType_ExternalWallet,
		custody.PeerType_Contract,
	} {
		wallets, err := d.client.ListWhitelistedWallets(ctx, walletType)
		if err != nil {
			return fmt.Errorf("failed to load whitelisted wallets: %w", err)
		}
		for _, w := range wallets {
			for _, asset := range w.Assets {
				if asset.Id != d.assetId || !common.IsHexAddress(asset.Address) {
					continue
				}
				d.whitelisted.LoadOrStore(common.HexToAddress(asset.Address), &Destination{Type: walletType, Id: w.Id})
			}
		}
	}
	return nil
}

func unknownSigner(address common.Address) error {
	return fmt.Errorf("%w: %s", providerErrors.ErrUnknownSigner, address.Hex())
}

var _ IDirectory = (*Directory)(nil)
