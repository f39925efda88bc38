package partitions

import (
	"fmt"
	"math"
)

// PartitionBuilder splits a list of elements into worker partitions
type PartitionBuilder struct {
	NumElements int

	// Partitioning parameters
	TargetPartitionSize int // Desired elements per partition
	Strategy            PartitionStrategy
}

// PartitionStrategy defines how elements are grouped
type PartitionStrategy int

const (
	BlockPartition PartitionStrategy = iota // Consecutive elements
	RoundRobin                              // Distribute cyclically
)

// ParseStrategy maps a configuration name to a strategy
func ParseStrategy(name string) (PartitionStrategy, error) {
	switch name {
	case "", "block":
		return BlockPartition, nil
	case "roundrobin", "round-robin":
		return RoundRobin, nil
	}
	return BlockPartition, fmt.Errorf("unknown partition strategy %q", name)
}

// NewLayout partitions numElements into roughly numPartitions blocks. It is
// the common entry point for element loops.
func NewLayout(numElements, numPartitions int, strategy PartitionStrategy) (*PartitionLayout, error) {
	if numPartitions < 1 {
		numPartitions = 1
	}
	target := int(math.Ceil(float64(numElements) / float64(numPartitions)))
	if target < 1 {
		target = 1
	}
	pb := &PartitionBuilder{
		NumElements:         numElements,
		TargetPartitionSize: target,
		Strategy:            strategy,
	}
	return pb.BuildPartitions()
}

// BuildPartitions creates a partition layout
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.NumElements < 0 {
		return nil, fmt.Errorf("negative element count %d", pb.NumElements)
	}
	if pb.TargetPartitionSize < 1 {
		return nil, fmt.Errorf("target partition size must be positive, got %d", pb.TargetPartitionSize)
	}

	numPartitions := pb.calculateNumPartitions()
	eToP := pb.partitionElements(numPartitions)
	partitions := pb.createPartitions(eToP, numPartitions)
	kpartMax := pb.calculateKpartMax(partitions)

	for i := range partitions {
		partitions[i].MaxElements = kpartMax
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalElements: pb.NumElements,
		NumPartitions: numPartitions,
		EToP:          eToP,
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}

	return layout, nil
}

// calculateNumPartitions determines the partition count, never more
// partitions than elements and at least one
func (pb *PartitionBuilder) calculateNumPartitions() int {
	numPartitions := int(math.Ceil(float64(pb.NumElements) / float64(pb.TargetPartitionSize)))
	if numPartitions < 1 {
		numPartitions = 1
	}
	return numPartitions
}

// partitionElements assigns elements to partitions
func (pb *PartitionBuilder) partitionElements(numPartitions int) []int {
	eToP := make([]int, pb.NumElements)

	switch pb.Strategy {
	case RoundRobin:
		for i := 0; i < pb.NumElements; i++ {
			eToP[i] = i % numPartitions
		}

	default:
		elementsPerPartition := int(math.Ceil(float64(pb.NumElements) / float64(numPartitions)))
		for i := 0; i < pb.NumElements; i++ {
			eToP[i] = i / elementsPerPartition
			if eToP[i] >= numPartitions {
				eToP[i] = numPartitions - 1
			}
		}
	}

	return eToP
}

// createPartitions builds partition structures from element assignments
func (pb *PartitionBuilder) createPartitions(eToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)

	for i := range partitions {
		partitions[i] = Partition{
			ID:       i,
			Elements: make([]int, 0),
		}
	}

	for elem, part := range eToP {
		partitions[part].Elements = append(partitions[part].Elements, elem)
		partitions[part].NumElements++
	}

	return partitions
}

// calculateKpartMax finds maximum elements across all partitions
func (pb *PartitionBuilder) calculateKpartMax(partitions []Partition) int {
	kpartMax := 0
	for _, p := range partitions {
		if p.NumElements > kpartMax {
			kpartMax = p.NumElements
		}
	}
	return kpartMax
}
