package bucket

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	heuristicModulus = 16_000_000
	heuristicSpread  = 16

	// ImageSize is the thumbnail variant used both for probing and for the
	// product image URLs.
	ImageSize = "c516x688"
)

// Vol is the first four digits of the product id.
func Vol(id int64) string {
	return prefix(id, 4)
}

// Part is the first six digits of the product id.
func Part(id int64) string {
	return prefix(id, 6)
}

func prefix(id int64, n int) string {
	s := strconv.FormatInt(abs(id), 10)
	if len(s) > n {
		return s[:n]
	}
	return s
}

// ImageURL builds the photo URL for one image slot (1-based) on a shard.
// hostTemplate carries a single %02d verb for the bucket number.
func ImageURL(hostTemplate string, bucket int, id int64, index int) string {
	host := strings.TrimRight(fmt.Sprintf(hostTemplate, bucket), "/")
	return fmt.Sprintf("%s/vol%s/part%s/%d/images/%s/%d.webp", host, Vol(id), Part(id), id, ImageSize, index)
}

// Heuristic is the primary guess: (id mod 16_000_000) mod 16 + 1, folded
// into [1, count] when count is smaller than the spread.
func Heuristic(id int64, count int) int {
	base := int(abs(id)%heuristicModulus)%heuristicSpread + 1
	if count > 0 && base > count {
		base = (base-1)%count + 1
	}
	return base
}

// HashFallback derives a bucket from the id alone: (|id| mod count) + 1.
func HashFallback(id int64, count int) int {
	if count <= 0 {
		return 1
	}
	u := uint64(id)
	if id < 0 {
		u = -u
	}
	return int(u%uint64(count)) + 1
}

// Candidates lists base first, then 1..count without repeating base.
func Candidates(base, count int) []int {
	out := make([]int, 0, count+1)
	out = append(out, base)
	for b := 1; b <= count; b++ {
		if b != base {
			out = append(out, b)
		}
	}
	return out
}

func abs(id int64) int64 {
	if id < 0 {
		return -id
	}
	return id
}
