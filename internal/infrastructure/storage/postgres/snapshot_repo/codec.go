package snapshot_repo

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/klauspost/compress/zstd"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
)

// Compression algorithms recorded next to the payload.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// entry is the serialised form of one snapshot line.
type entry struct {
	ItemID      string         `json:"i"`
	WarehouseID string         `json:"w"`
	LotTag      string         `json:"l,omitempty"`
	Qty         types.Quantity `json:"q"`
	Value       types.Money    `json:"v"`
}

// Codec serialises snapshot entries as JSON, compressed with zstd above a
// size threshold. Encoders and decoders are safe for concurrent use.
type Codec struct {
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	threshold int
}

// NewCodec creates a codec. Payloads of at most threshold bytes are stored raw.
func NewCodec(threshold int) (*Codec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Codec{encoder: encoder, decoder: decoder, threshold: threshold}, nil
}

// Close releases the zstd resources.
func (c *Codec) Close() {
	_ = c.encoder.Close()
	c.decoder.Close()
}

// Encode returns the payload and the compression it used. Entries are
// written in key order so equal snapshots produce equal payloads.
func (c *Codec) Encode(entries map[ledger.GroupKey]balance.BaselineEntry) ([]byte, string, error) {
	keys := make([]ledger.GroupKey, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	lines := make([]entry, 0, len(keys))
	for _, k := range keys {
		e := entries[k]
		lines = append(lines, entry{ItemID: k.ItemID, WarehouseID: k.WarehouseID, LotTag: k.LotTag, Qty: e.Qty, Value: e.Value})
	}

	raw, err := json.Marshal(lines)
	if err != nil {
		return nil, "", fmt.Errorf("marshal snapshot: %w", err)
	}
	if len(raw) <= c.threshold {
		return raw, CompressionNone, nil
	}
	return c.encoder.EncodeAll(raw, nil), CompressionZstd, nil
}

// Decode reverses Encode.
func (c *Codec) Decode(payload []byte, compression string) (map[ledger.GroupKey]balance.BaselineEntry, error) {
	switch compression {
	case CompressionZstd:
		raw, err := c.decoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress snapshot: %w", err)
		}
		payload = raw
	case CompressionNone, "":
	default:
		return nil, fmt.Errorf("unknown snapshot compression %q", compression)
	}

	var lines []entry
	if err := json.Unmarshal(payload, &lines); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	out := make(map[ledger.GroupKey]balance.BaselineEntry, len(lines))
	for _, l := range lines {
		key := ledger.GroupKey{ItemID: l.ItemID, WarehouseID: l.WarehouseID, LotTag: l.LotTag}
		out[key] = balance.BaselineEntry{Qty: l.Qty, Value: l.Value}
	}
	return out, nil
}
