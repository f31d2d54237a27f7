package indexer

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"defiFetch/internal/chain"
	"defiFetch/internal/model"
)

func buildLogRecord(chainName string, log chain.Log) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		Chain:       chainName,
		BlockNumber: uint64(log.BlockNumber),
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint32(log.TxIndex),
		LogIndex:    uint32(log.LogIndex),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
	}
}
