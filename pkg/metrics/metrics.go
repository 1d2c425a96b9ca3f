// Package metrics declares the opencensus measures recorded by repository connectors.
//
// Measures are always recorded: exporting them is left to the application, which registers
// the Views() and an opencensus exporter of its choice.
package metrics

import (
	"context"
	"time"

	"github.com/docker/go-units"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

const (
	// KB stands for kilo bytes (1024 bytes)
	KB = units.KiB

	// MB stands for mega bytes (1024 kilo bytes)
	MB = units.MiB

	// GB stands for giga bytes (1024 mega bytes)
	GB = units.GiB
)

var (
	// KeyKind tags measures with the payload kind (artifact, metadata)
	KeyKind = tag.MustNewKey("kind")

	// KeyDirection tags measures with the transfer direction (upload, download)
	KeyDirection = tag.MustNewKey("direction")

	// KeyRepository tags measures with the repository id
	KeyRepository = tag.MustNewKey("repository")

	// Transfers counts terminated transfers
	Transfers = stats.Int64("depot/transfers", "transfers counter", stats.UnitDimensionless)

	// TransferFailures counts failed transfers
	TransferFailures = stats.Int64("depot/transfer_failures", "failed transfers counter", stats.UnitDimensionless)

	// TransferBytes measures the payload size of successful transfers
	TransferBytes = stats.Int64("depot/transfer_bytes", "transferred bytes", stats.UnitBytes)

	// TransferTiming measures the duration of transfers
	TransferTiming = stats.Float64("depot/transfer_timing", "transfer duration in milliseconds", stats.UnitMilliseconds)

	tagKeys = []tag.Key{KeyRepository, KeyKind, KeyDirection}
)

// Views returns the default views on the transfer measures
func Views() []*view.View {
	return []*view.View{
		{
			Name:        Transfers.Name(),
			Description: describeViewFromDist(Transfers.Description(), view.Count()),
			Measure:     Transfers,
			Aggregation: view.Count(),
			TagKeys:     tagKeys,
		},
		{
			Name:        TransferFailures.Name(),
			Description: describeViewFromDist(TransferFailures.Description(), view.Count()),
			Measure:     TransferFailures,
			Aggregation: view.Count(),
			TagKeys:     tagKeys,
		},
		{
			Name:        TransferBytes.Name(),
			Description: describeViewFromDist(TransferBytes.Description(), bytesDistribution()),
			Measure:     TransferBytes,
			Aggregation: bytesDistribution(),
			TagKeys:     tagKeys,
		},
		{
			Name:        TransferBytes.Name() + "_sum",
			Description: describeViewFromDist(TransferBytes.Description(), view.Sum()),
			Measure:     TransferBytes,
			Aggregation: view.Sum(),
			TagKeys:     tagKeys,
		},
		{
			Name:        TransferTiming.Name(),
			Description: describeViewFromDist(TransferTiming.Description(), durationDistribution()),
			Measure:     TransferTiming,
			Aggregation: durationDistribution(),
			TagKeys:     tagKeys,
		},
	}
}

// Register registers the default views with opencensus
func Register() error {
	return view.Register(Views()...)
}

// Unregister removes the default views from opencensus
func Unregister() {
	view.Unregister(Views()...)
}

// RecordTransfer records the outcome of a terminated transfer
func RecordTransfer(ctx context.Context, repository, kind, direction string, bytes int64, elapsed time.Duration, failed bool) {
	tagged, err := tag.New(ctx,
		tag.Upsert(KeyRepository, repository),
		tag.Upsert(KeyKind, kind),
		tag.Upsert(KeyDirection, direction),
	)
	if err != nil {
		tagged = ctx
	}

	ms := []stats.Measurement{
		Transfers.M(1),
		TransferTiming.M(float64(elapsed) / float64(time.Millisecond)),
	}
	if failed {
		ms = append(ms, TransferFailures.M(1))
	} else {
		ms = append(ms, TransferBytes.M(bytes))
	}
	stats.Record(tagged, ms...)
}

func durationDistribution() *view.Aggregation {
	// buckets in milliseconds
	return view.Distribution(
		10, 50,
		100, 300, 500, 700, 900,
		1000, 1300, 1500, 1700, 1900,
		2000, 3000, 5000, 7000, 9000,
		10000, 30000, 50000, 70000, 90000,
		100000,
	)
}

func bytesDistribution() *view.Aggregation {
	// buckets in bytes
	return view.Distribution(
		500,
		1*KB, 5*KB, 10*KB, 50*KB,
		100*KB, 500*KB, 1*MB, 5*MB, 10*MB,
		50*MB, 100*MB, 500*MB, 1*GB, 5*GB,
	)
}

func describeViewFromDist(desc string, in *view.Aggregation) string {
	if in == nil {
		return desc
	}
	switch in.Type {
	case view.AggTypeCount:
		return desc + " [count]"
	case view.AggTypeSum:
		return desc + " [cumulated]"
	case view.AggTypeDistribution:
		return desc + " [distribution]"
	case view.AggTypeLastValue:
		return desc + " [last]"
	default:
		return desc
	}
}
