/**
 * @description
 * Token birthdate lookup against an Ethereum JSON-RPC endpoint.
 * A token's birthdate is the timestamp of the block containing its first
 * mint transfer (a Transfer event from the zero address).
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum
 * - backend/internal/config
 */

package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/chronoprice-project/backend/internal/config"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const lookupTimeout = 15 * time.Second

// transferTopic is the keccak256 hash of Transfer(address,address,uint256)
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// zeroTopic is the zero address left-padded to a 32-byte log topic
var zeroTopic = common.BytesToHash(common.Address{}.Bytes())

// BirthdateService resolves and caches token birthdates. Birthdates never
// change, so cached entries have no TTL.
type BirthdateService struct {
	client  *ethclient.Client
	cacheMu sync.Mutex
	cache   map[string]time.Time
}

func NewBirthdateService(cfg *config.Config) (*BirthdateService, error) {
	rpcURL := strings.TrimSpace(cfg.Alchemy.EthRPCURL)
	if rpcURL == "" {
		return nil, fmt.Errorf("ETH_RPC_URL is required for birthdate lookups")
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	return &BirthdateService{
		client: client,
		cache:  make(map[string]time.Time),
	}, nil
}

// TokenBirthdate returns the earliest on-chain activity instant for a token
// contract, in UTC.
func (s *BirthdateService) TokenBirthdate(ctx context.Context, tokenAddress string) (time.Time, error) {
	addr := common.HexToAddress(tokenAddress)
	if addr == (common.Address{}) {
		return time.Time{}, fmt.Errorf("invalid token address: %s", tokenAddress)
	}

	cacheKey := strings.ToLower(addr.Hex())
	s.cacheMu.Lock()
	if cached, ok := s.cache[cacheKey]; ok {
		s.cacheMu.Unlock()
		return cached, nil
	}
	s.cacheMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	// First Transfer from the zero address is the mint/deployment event
	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{addr},
		Topics:    [][]common.Hash{{transferTopic}, {zeroTopic}},
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query token transfers: %w", err)
	}
	if len(logs) == 0 {
		return time.Time{}, fmt.Errorf("could not find deployment transfer for token %s", tokenAddress)
	}

	earliest := logs[0].BlockNumber
	for _, l := range logs[1:] {
		if l.BlockNumber < earliest {
			earliest = l.BlockNumber
		}
	}

	header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(earliest))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch block %d: %w", earliest, err)
	}

	birthdate := time.Unix(int64(header.Time), 0).UTC()

	s.cacheMu.Lock()
	s.cache[cacheKey] = birthdate
	s.cacheMu.Unlock()

	return birthdate, nil
}
