package devnet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"launchpad/internal/ledger"
)

// LogSource serves ledger logs through the same surface the indexer uses for a live
// chain. Only sealed blocks are visible.
type LogSource struct {
	ledger *ledger.Ledger
}

func NewLogSource(l *ledger.Ledger) *LogSource {
	return &LogSource{ledger: l}
}

func (s *LogSource) GetChainID(context.Context) (*big.Int, error) {
	return new(big.Int).SetUint64(s.ledger.ChainID()), nil
}

func (s *LogSource) LatestBlockNumber(context.Context) (uint64, error) {
	return s.ledger.BlockNumber() - 1, nil
}

func (s *LogSource) FilterLogs(_ context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	if fromBlock > toBlock {
		return nil, fmt.Errorf("invalid range %d-%d", fromBlock, toBlock)
	}
	addrSet := make(map[common.Address]struct{}, len(addresses))
	for _, addr := range addresses {
		addrSet[addr] = struct{}{}
	}
	topicSet := make(map[common.Hash]struct{}, len(topic0))
	for _, topic := range topic0 {
		topicSet[topic] = struct{}{}
	}

	var out []types.Log
	for _, log := range s.ledger.Logs() {
		if log.BlockNumber < fromBlock || log.BlockNumber > toBlock {
			continue
		}
		if len(addrSet) > 0 {
			if _, ok := addrSet[log.Address]; !ok {
				continue
			}
		}
		if len(topicSet) > 0 {
			if len(log.Topics) == 0 {
				continue
			}
			if _, ok := topicSet[log.Topics[0]]; !ok {
				continue
			}
		}
		out = append(out, log)
	}
	return out, nil
}

func (s *LogSource) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	if number == 0 || number >= s.ledger.BlockNumber() {
		return 0, fmt.Errorf("block %d not sealed", number)
	}
	return s.ledger.BlockTime(number), nil
}

// Decimals resolves token decimals from the ledger's token registry.
type Decimals struct {
	ledger *ledger.Ledger
}

func NewDecimals(l *ledger.Ledger) *Decimals {
	return &Decimals{ledger: l}
}

func (d *Decimals) Decimals(_ context.Context, token common.Address) (uint8, error) {
	t, ok := d.ledger.Token(token)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ledger.ErrUnknownToken, token.Hex())
	}
	return t.Decimals, nil
}
