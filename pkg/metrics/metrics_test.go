package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
)

func TestRecordTransfer(t *testing.T) {
	require.NoError(t, Register())
	defer Unregister()

	RecordTransfer(context.Background(), "central", "artifact", "upload", 2*KB, 15*time.Millisecond, false)
	RecordTransfer(context.Background(), "central", "artifact", "upload", 0, time.Millisecond, true)
	RecordTransfer(context.Background(), "central", "metadata", "download", 100, time.Millisecond, false)

	rows, err := view.RetrieveData(Transfers.Name())
	require.NoError(t, err)
	var total int64
	for _, row := range rows {
		total += row.Data.(*view.CountData).Value
	}
	assert.Equal(t, int64(3), total)

	rows, err = view.RetrieveData(TransferFailures.Name())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].Data.(*view.CountData).Value)

	rows, err = view.RetrieveData(TransferBytes.Name() + "_sum")
	require.NoError(t, err)
	var sum float64
	for _, row := range rows {
		sum += row.Data.(*view.SumData).Value
	}
	assert.Equal(t, float64(2*KB+100), sum)
}

func TestViews(t *testing.T) {
	views := Views()
	require.Len(t, views, 5)
	for _, v := range views {
		assert.NotEmpty(t, v.Description)
		assert.Len(t, v.TagKeys, 3)
	}
	assert.Equal(t, "transfers counter [count]", views[0].Description)
}
