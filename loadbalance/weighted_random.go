package loadbalance

import (
	"fmt"
	"math/rand"

	"stream-rpc/registry"
)

// WeightedRandomBalancer picks nodes randomly in proportion to their
// announced weight, so a node with twice the weight carries roughly twice
// the exchanges.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []registry.Instance) (*registry.Instance, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no instances available")
	}

	totalWeight := 0
	for _, v := range instances {
		totalWeight += v.Weight
	}

	// A random point in [0, totalWeight) falls into one instance's band
	r := rand.Intn(totalWeight)
	for _, v := range instances {
		r -= v.Weight
		if r < 0 {
			return &v, nil
		}
	}

	return nil, fmt.Errorf("unexpected error in weighted random selection")
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
