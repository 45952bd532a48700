package keyshared

import (
	"fmt"
	"math"

	"github.com/google/btree"
)

// ConsistentHash places each consumer at R virtual points on a hash ring
// (default 100, per spec). Select maps a hash to the next point clockwise.
// The ring itself is a google/btree.BTree ordered by point hash — the same
// dependency the range-set directory uses — queried with
// AscendGreaterOrEqual and a wrap to Min, which is exactly the "next point
// clockwise" operation the ring needs.
type ConsistentHash struct {
	replicaPoints int
	ring          *btree.BTree
	members       map[string]struct{}
}

// NewConsistentHash returns a ConsistentHash selector with the given number
// of virtual points per consumer. A non-positive value uses the default of
// 100.
func NewConsistentHash(replicaPoints int) *ConsistentHash {
	if replicaPoints <= 0 {
		replicaPoints = 100
	}
	return &ConsistentHash{
		replicaPoints: replicaPoints,
		ring:          btree.New(32),
		members:       make(map[string]struct{}),
	}
}

type ringPoint struct {
	hash     uint32
	consumer string
}

func (p *ringPoint) Less(than btree.Item) bool {
	o := than.(*ringPoint)
	if p.hash != o.hash {
		return p.hash < o.hash
	}
	return p.consumer < o.consumer
}

func pointHash(name string, replica int) uint32 {
	return HashKey([]byte(fmt.Sprintf("%s#%d", name, replica)))
}

func (c *ConsistentHash) AddConsumer(name string) error {
	if _, exists := c.members[name]; exists {
		return nil
	}
	for i := 0; i < c.replicaPoints; i++ {
		c.ring.ReplaceOrInsert(&ringPoint{hash: pointHash(name, i), consumer: name})
	}
	c.members[name] = struct{}{}
	return nil
}

func (c *ConsistentHash) RemoveConsumer(name string) {
	if _, exists := c.members[name]; !exists {
		return
	}
	for i := 0; i < c.replicaPoints; i++ {
		c.ring.Delete(&ringPoint{hash: pointHash(name, i), consumer: name})
	}
	delete(c.members, name)
}

func (c *ConsistentHash) Select(hash uint32) (string, bool) {
	if c.ring.Len() == 0 {
		return "", false
	}
	var owner *ringPoint
	c.ring.AscendGreaterOrEqual(&ringPoint{hash: hash}, func(i btree.Item) bool {
		owner = i.(*ringPoint)
		return false
	})
	if owner == nil {
		owner = c.ring.Min().(*ringPoint)
	}
	return owner.consumer, true
}

// ConsumerKeyHashRanges reports every ring arc currently owned by each
// consumer. Because each consumer holds R scattered points, it will
// typically own many small, disjoint arcs rather than one contiguous range.
func (c *ConsistentHash) ConsumerKeyHashRanges() map[string][]HashRange {
	out := make(map[string][]HashRange)
	var points []*ringPoint
	c.ring.Ascend(func(i btree.Item) bool {
		points = append(points, i.(*ringPoint))
		return true
	})
	if len(points) == 0 {
		return out
	}
	for idx, p := range points {
		if idx == 0 {
			last := points[len(points)-1].hash
			var lo uint32
			if last == math.MaxUint32 {
				lo = 0
			} else {
				lo = last + 1
			}
			if lo > p.hash {
				out[p.consumer] = append(out[p.consumer], HashRange{Lo: lo, Hi: math.MaxUint32})
				out[p.consumer] = append(out[p.consumer], HashRange{Lo: 0, Hi: p.hash})
				continue
			}
			out[p.consumer] = append(out[p.consumer], HashRange{Lo: lo, Hi: p.hash})
			continue
		}
		lo := points[idx-1].hash + 1
		out[p.consumer] = append(out[p.consumer], HashRange{Lo: lo, Hi: p.hash})
	}
	return out
}
