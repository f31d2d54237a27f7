package model

import "strings"

// MaxTopics is the number of indexed topic positions in an EVM log.
const MaxTopics = 4

// ContractConfig identifies a contract and the topic filters of interest.
// An empty set at a position matches any topic; non-empty positions are ANDed.
type ContractConfig struct {
	Address string
	Topics  [MaxTopics][]string
}

// NewContractConfig builds a config filtering topic0 only.
func NewContractConfig(address string, topic0 ...string) ContractConfig {
	cfg := ContractConfig{Address: address}
	if len(topic0) > 0 {
		cfg.Topics[0] = append([]string(nil), topic0...)
	}
	return cfg
}

// HasFilter reports whether any topic position is constrained.
func (c ContractConfig) HasFilter() bool {
	for _, set := range c.Topics {
		if len(set) > 0 {
			return true
		}
	}
	return false
}

// Matches reports whether the log topics satisfy every non-empty position.
func (c ContractConfig) Matches(topics []string) bool {
	for pos, set := range c.Topics {
		if len(set) == 0 {
			continue
		}
		if pos >= len(topics) {
			return false
		}
		if !containsFold(set, topics[pos]) {
			return false
		}
	}
	return true
}

// FilterTopics returns the eth_getLogs topics parameter with trailing
// unconstrained positions trimmed. A nil entry means "any".
func (c ContractConfig) FilterTopics() [][]string {
	last := -1
	for pos, set := range c.Topics {
		if len(set) > 0 {
			last = pos
		}
	}
	if last < 0 {
		return nil
	}
	out := make([][]string, last+1)
	for pos := 0; pos <= last; pos++ {
		if len(c.Topics[pos]) > 0 {
			out[pos] = append([]string(nil), c.Topics[pos]...)
		}
	}
	return out
}

// Combinations enumerates every concrete topic combination of the filter, in
// position order. Unconstrained positions stay nil.
func (c ContractConfig) Combinations() [][]string {
	base := c.FilterTopics()
	if len(base) == 0 {
		return nil
	}
	combos := [][]string{make([]string, 0, len(base))}
	for _, set := range base {
		next := make([][]string, 0, len(combos)*max(len(set), 1))
		for _, prefix := range combos {
			if len(set) == 0 {
				next = append(next, append(append([]string(nil), prefix...), ""))
				continue
			}
			for _, topic := range set {
				next = append(next, append(append([]string(nil), prefix...), topic))
			}
		}
		combos = next
	}
	return combos
}

// GetLogsParam is a single eth_getLogs request.
type GetLogsParam struct {
	Address   string
	FromBlock uint64
	ToBlock   uint64
	Topics    [][]string
}

func containsFold(set []string, value string) bool {
	for _, item := range set {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
