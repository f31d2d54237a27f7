package dex

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"defiFetch/internal/model"
)

// Decoder turns raw logs of one contract family into typed events.
type Decoder interface {
	Kind(topic0 string) (model.EventKind, bool)
	Decode(log model.LogRecord) (model.TypedEvent, error)
}

// UnknownTopicError is returned for a log whose topic0 the decoder does not know.
type UnknownTopicError struct {
	TxHash   string
	LogIndex uint32
	Topic0   string
}

func (e *UnknownTopicError) Error() string {
	return fmt.Sprintf("unexpected topic0 %s at %s#%d", e.Topic0, e.TxHash, e.LogIndex)
}

// DecodeAll decodes logs in order. Unknown topics are skipped unless strict is
// set, in which case they abort with an UnknownTopicError.
func DecodeAll(d Decoder, logs []model.LogRecord, strict bool) ([]model.TypedEvent, error) {
	events := make([]model.TypedEvent, 0, len(logs))
	for _, log := range logs {
		if _, ok := d.Kind(log.Topic0()); !ok {
			if strict {
				return nil, &UnknownTopicError{TxHash: log.TxHash, LogIndex: log.LogIndex, Topic0: log.Topic0()}
			}
			continue
		}
		event, err := d.Decode(log)
		if err != nil {
			return nil, fmt.Errorf("decode %s#%d: %w", log.TxHash, log.LogIndex, err)
		}
		events = append(events, event)
	}
	return events, nil
}

// eventTable indexes an ABI's events by topic0.
type eventTable struct {
	abi    abi.ABI
	kinds  map[string]model.EventKind
	events map[string]abi.Event
}

func newEventTable(parsed abi.ABI, kinds map[string]model.EventKind) eventTable {
	table := eventTable{
		abi:    parsed,
		kinds:  make(map[string]model.EventKind, len(kinds)),
		events: make(map[string]abi.Event, len(kinds)),
	}
	for name, kind := range kinds {
		event := parsed.Events[name]
		topic := strings.ToLower(event.ID.Hex())
		table.kinds[topic] = kind
		table.events[topic] = event
	}
	return table
}

func (t eventTable) lookup(topic0 string) (abi.Event, model.EventKind, bool) {
	topic := strings.ToLower(topic0)
	kind, ok := t.kinds[topic]
	if !ok {
		return abi.Event{}, "", false
	}
	return t.events[topic], kind, true
}

// Topic0 returns the signature hash of the event that maps to kind.
func (t eventTable) topic0(kind model.EventKind) string {
	for topic, k := range t.kinds {
		if k == kind {
			return topic
		}
	}
	return ""
}

func (t eventTable) unpack(log model.LogRecord) (abi.Event, model.EventKind, fields, error) {
	event, kind, ok := t.lookup(log.Topic0())
	if !ok {
		return abi.Event{}, "", nil, &UnknownTopicError{TxHash: log.TxHash, LogIndex: log.LogIndex, Topic0: log.Topic0()}
	}

	indexedArgs := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexedArgs)+1 {
		return abi.Event{}, "", nil, fmt.Errorf("%s: expected %d topics, got %d", event.Name, len(indexedArgs)+1, len(log.Topics))
	}
	topics, err := parseTopicHashes(log.Topics[1:])
	if err != nil {
		return abi.Event{}, "", nil, err
	}

	values := fields{}
	if err := abi.ParseTopicsIntoMap(values, indexedArgs, topics); err != nil {
		return abi.Event{}, "", nil, fmt.Errorf("%s: parse topics: %w", event.Name, err)
	}
	data, err := hexutil.Decode(log.Data)
	if err != nil {
		return abi.Event{}, "", nil, fmt.Errorf("%s: invalid data: %w", event.Name, err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(values, data); err != nil {
		return abi.Event{}, "", nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return event, kind, values, nil
}

func typedEvent(log model.LogRecord, kind model.EventKind, decoded interface{}) model.TypedEvent {
	return model.TypedEvent{
		BlockNumber: log.BlockNumber,
		Timestamp:   log.Timestamp,
		TxHash:      log.TxHash,
		TxIndex:     log.TxIndex,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		Kind:        kind,
		Decoded:     decoded,
		Raw:         &model.RawLogRef{Topics: append([]string(nil), log.Topics...), Data: log.Data},
	}
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
