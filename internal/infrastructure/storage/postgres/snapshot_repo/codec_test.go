package snapshot_repo

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/ledger"
)

func entries(n int) map[ledger.GroupKey]balance.BaselineEntry {
	out := make(map[ledger.GroupKey]balance.BaselineEntry, n)
	for i := 0; i < n; i++ {
		key := ledger.GroupKey{ItemID: fmt.Sprintf("ITEM-%04d", i), WarehouseID: "Stores", LotTag: fmt.Sprintf("PR-%d", i%7)}
		out[key] = balance.BaselineEntry{Qty: types.NewQuantity(int64(i)), Value: types.NewMoney(float64(i) * 1.5)}
	}
	return out
}

func TestCodecCompressesLargeSnapshots(t *testing.T) {
	codec, err := NewCodec(1024)
	require.NoError(t, err)

	in := entries(500)
	payload, algo, err := codec.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, algo)

	out, err := codec.Decode(payload, algo)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for k, e := range in {
		assert.Equal(t, e.Qty, out[k].Qty)
		assert.True(t, e.Value.Equal(out[k].Value), k.String())
	}
}

func TestCodecKeepsSmallSnapshotsRaw(t *testing.T) {
	codec, err := NewCodec(DefaultCompressThreshold)
	require.NoError(t, err)

	payload, algo, err := codec.Encode(entries(2))
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, algo)
	assert.Contains(t, string(payload), `"i":"ITEM-0000"`)
}

func TestCodecIsDeterministic(t *testing.T) {
	codec, err := NewCodec(DefaultCompressThreshold)
	require.NoError(t, err)

	a, _, err := codec.Encode(entries(50))
	require.NoError(t, err)
	b, _, err := codec.Encode(entries(50))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCodecRejectsUnknownCompression(t *testing.T) {
	codec, err := NewCodec(DefaultCompressThreshold)
	require.NoError(t, err)

	_, err = codec.Decode([]byte("[]"), "lz4")
	assert.Error(t, err)
}
