package partitions

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// Partition is a contiguous unit of element work executed by one worker,
// or by one @outer iteration of a device kernel
type Partition struct {
	// Unique identifier for this partition
	ID int

	// Element membership
	Elements    []int // Global element indices in this partition
	NumElements int   // Actual number of active elements
	MaxElements int   // Padded size for device @inner loop uniformity
}

// PartitionLayout manages the complete element decomposition
type PartitionLayout struct {
	// All partitions in the mesh
	Partitions []Partition

	// Global sizing information
	KpartMax      int // max(NumElements) across all partitions
	TotalElements int // Sum of all actual elements across partitions
	NumPartitions int // Total number of partitions

	// Element to partition mapping
	EToP []int // Length TotalElements: element k belongs to partition EToP[k]
}

// PartitionedArray represents per-element data laid out partition by
// partition, each partition padded to KpartMax elements
type PartitionedArray struct {
	// Layout: [Partition 0 Data][Partition 1 Data]...[Partition N-1 Data]
	GlobalData []float64

	// Partition p's data starts at GlobalData[Offsets[p]]
	Offsets []int

	// Number of values per element
	Stride int
}

// GetPartition returns the partition containing element k
func (pl *PartitionLayout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[elementID]
}

// K returns the number of active elements per partition
func (pl *PartitionLayout) K() []int {
	k := make([]int, pl.NumPartitions)
	for i, p := range pl.Partitions {
		k[i] = p.NumElements
	}
	return k
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	actualMax := 0
	total := 0
	for _, p := range pl.Partitions {
		if p.NumElements > actualMax {
			actualMax = p.NumElements
		}
		if p.MaxElements != pl.KpartMax {
			return fmt.Errorf("partition %d: MaxElements %d != KpartMax %d",
				p.ID, p.MaxElements, pl.KpartMax)
		}
		if len(p.Elements) != p.NumElements {
			return fmt.Errorf("partition %d: %d elements listed, NumElements %d",
				p.ID, len(p.Elements), p.NumElements)
		}
		for _, k := range p.Elements {
			if pl.GetPartition(k) != p.ID {
				return fmt.Errorf("partition %d: element %d mapped to partition %d",
					p.ID, k, pl.GetPartition(k))
			}
		}
		total += p.NumElements
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	if total != pl.TotalElements {
		return fmt.Errorf("partitions hold %d elements, expected %d", total, pl.TotalElements)
	}
	return nil
}

// Run calls fn once per partition, at most workers partitions at a time.
// Partitions own disjoint element sets, so fn may write per-element output
// slots without synchronisation. Every partition runs to completion; the
// error of the lowest numbered failing partition is returned.
func (pl *PartitionLayout) Run(workers int, fn func(p Partition) error) error {
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	errs := make([]error, len(pl.Partitions))
	for i, p := range pl.Partitions {
		i, p := i, p
		g.Go(func() error {
			errs[i] = fn(p)
			return errs[i]
		})
	}
	if err := g.Wait(); err == nil {
		return nil
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Pack gathers stride values per element into partition order, padding
// each partition to KpartMax elements with zeros
func (pl *PartitionLayout) Pack(stride int, values func(k int, dst []float64)) *PartitionedArray {
	offsets := make([]int, pl.NumPartitions+1)
	for i := range pl.Partitions {
		offsets[i+1] = offsets[i] + pl.KpartMax*stride
	}
	pa := &PartitionedArray{
		GlobalData: make([]float64, offsets[pl.NumPartitions]),
		Offsets:    offsets,
		Stride:     stride,
	}
	for i, p := range pl.Partitions {
		for local, k := range p.Elements {
			start := offsets[i] + local*stride
			values(k, pa.GlobalData[start:start+stride])
		}
	}
	return pa
}

// Unpack scatters partition ordered data back to element order
func (pl *PartitionLayout) Unpack(pa *PartitionedArray, values func(k int, src []float64)) {
	for i, p := range pl.Partitions {
		for local, k := range p.Elements {
			start := pa.Offsets[i] + local*pa.Stride
			values(k, pa.GlobalData[start:start+pa.Stride])
		}
	}
}

// GetPartitionData returns a slice for partition p's data
func (pa *PartitionedArray) GetPartitionData(partitionID int) []float64 {
	if partitionID < 0 || partitionID >= len(pa.Offsets)-1 {
		return nil
	}
	start := pa.Offsets[partitionID]
	end := pa.Offsets[partitionID+1]
	return pa.GlobalData[start:end]
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: pl.NumPartitions,
		MinElements:   math.MaxInt32,
	}
	if pl.NumPartitions == 0 {
		stats.MinElements = 0
		return stats
	}
	stats.AvgElements = float64(pl.TotalElements) / float64(pl.NumPartitions)

	for _, p := range pl.Partitions {
		if p.NumElements < stats.MinElements {
			stats.MinElements = p.NumElements
		}
		if p.NumElements > stats.MaxElements {
			stats.MaxElements = p.NumElements
		}
	}

	if stats.AvgElements > 0 {
		stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements
	}
	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinElements   int
	MaxElements   int
	AvgElements   float64
	Imbalance     float64 // MaxElements / AvgElements
}
