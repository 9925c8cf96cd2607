package position

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EventKind names a position-manager event.
type EventKind string

const (
	KindIncreaseLiquidity EventKind = "IncreaseLiquidity"
	KindDecreaseLiquidity EventKind = "DecreaseLiquidity"
	KindCollect           EventKind = "Collect"
	KindTransfer          EventKind = "Transfer"
)

func parseKind(value string) (EventKind, error) {
	switch kind := EventKind(strings.TrimSpace(value)); kind {
	case KindIncreaseLiquidity, KindDecreaseLiquidity, KindCollect, KindTransfer:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown event kind %q", value)
	}
}

// DenyEntry drops every event of Kind emitted in Block.
type DenyEntry struct {
	Kind  EventKind
	Block uint64
}

func (e DenyEntry) String() string {
	return fmt.Sprintf("%s@%d", e.Kind, e.Block)
}

// Denylist is a set of (event kind, block) pairs whose events are dropped.
type Denylist struct {
	entries map[DenyEntry]struct{}
}

func NewDenylist(entries ...DenyEntry) Denylist {
	set := make(map[DenyEntry]struct{}, len(entries))
	for _, entry := range entries {
		set[entry] = struct{}{}
	}
	return Denylist{entries: set}
}

// DefaultDenylist covers block 14317993, whose liquidity events are malformed.
func DefaultDenylist() Denylist {
	return NewDenylist(
		DenyEntry{Kind: KindIncreaseLiquidity, Block: 14317993},
		DenyEntry{Kind: KindDecreaseLiquidity, Block: 14317993},
	)
}

// ParseDenylist reads entries of the form Kind@block.
func ParseDenylist(values []string) (Denylist, error) {
	entries := make([]DenyEntry, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		kindPart, blockPart, ok := strings.Cut(value, "@")
		if !ok {
			return Denylist{}, fmt.Errorf("invalid denylist entry %q: want Kind@block", value)
		}
		kind, err := parseKind(kindPart)
		if err != nil {
			return Denylist{}, fmt.Errorf("invalid denylist entry %q: %w", value, err)
		}
		block, err := strconv.ParseUint(strings.TrimSpace(blockPart), 10, 64)
		if err != nil {
			return Denylist{}, fmt.Errorf("invalid denylist block %q: %w", value, err)
		}
		entries = append(entries, DenyEntry{Kind: kind, Block: block})
	}
	return NewDenylist(entries...), nil
}

func (d Denylist) Contains(kind EventKind, block uint64) bool {
	_, ok := d.entries[DenyEntry{Kind: kind, Block: block}]
	return ok
}

func (d Denylist) Len() int {
	return len(d.entries)
}

// Entries returns the entries ordered by block, then kind.
func (d Denylist) Entries() []DenyEntry {
	out := make([]DenyEntry, 0, len(d.entries))
	for entry := range d.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Block != out[j].Block {
			return out[i].Block < out[j].Block
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
