// Package queue decides which queues a worker asks the server for, and
// in what order.
//
// The FETCH command lists queue names in priority order; the server
// scans them left to right. A [Provider] produces that list for every
// fetch round, which is what makes ordering strategies pluggable:
//
//   - [Strict] always fetches in a fixed priority order.
//   - [Weighted] shuffles the order each round, biased by weight, so a
//     busy high-priority queue cannot starve the others.
//   - [Gate] wraps another provider with per-queue token buckets
//     (golang.org/x/time/rate) and drops queues whose bucket is empty
//     from that round.
//
//	w := queue.NewWeighted(map[string]int{"critical": 7, "default": 2, "bulk": 1})
//	gated := queue.NewGate(w, queue.Limit{Queue: "bulk", PerSecond: 5, Burst: 10})
//
// Queues without a [Limit] pass through a Gate unfiltered.
package queue
