package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/santu8597/Arbiata/internal/config"
)

// ErrPoolNotFound is returned when no pool exists for the requested pairing
// and fee tier on either stablecoin pairing.
var ErrPoolNotFound = errors.New("pool not found")

// ErrUpstreamUnavailable is returned when a chain RPC endpoint cannot be
// reached or a call to it fails.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ErrUnknownChain is returned for a chain name absent from the configuration.
var ErrUnknownChain = errors.New("unknown chain")

// Registry holds one RPC client per configured chain. It is constructed once
// in main and passed to every component that talks to a chain; there is no
// package-level provider cache.
type Registry struct {
	logger  *slog.Logger
	clients map[string]*ethclient.Client
	configs map[string]config.ChainConfig
}

// NewRegistry dials every configured chain endpoint.
func NewRegistry(ctx context.Context, logger *slog.Logger, chains map[string]config.ChainConfig) (*Registry, error) {
	r := &Registry{
		logger:  logger,
		clients: make(map[string]*ethclient.Client, len(chains)),
		configs: make(map[string]config.ChainConfig, len(chains)),
	}
	for name, cfg := range chains {
		client, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("dial %s: %w", name, err)
		}
		r.clients[name] = client
		r.configs[name] = cfg
		logger.Info("chain endpoint connected", "chain", name, "chainId", cfg.ChainID)
	}
	return r, nil
}

// Client returns the RPC client for a chain.
func (r *Registry) Client(chain string) (*ethclient.Client, error) {
	c, ok := r.clients[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, chain)
	}
	return c, nil
}

// Config returns the chain configuration for a chain.
func (r *Registry) Config(chain string) (config.ChainConfig, error) {
	cfg, ok := r.configs[chain]
	if !ok {
		return config.ChainConfig{}, fmt.Errorf("%w: %s", ErrUnknownChain, chain)
	}
	return cfg, nil
}

// Close releases every RPC connection.
func (r *Registry) Close() {
	for name, c := range r.clients {
		c.Close()
		delete(r.clients, name)
	}
}
