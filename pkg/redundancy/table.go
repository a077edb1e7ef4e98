package redundancy

import "fmt"

// ErasureTable maps shard counts to parity counts. Shard thresholds are
// strictly descending; parities never increase along them.
type ErasureTable struct {
	shards   []int
	parities []int
}

var (
	mediumTable = newErasureTable(
		[]int{95, 69, 47, 29, 15, 6, 2, 1},
		[]int{9, 8, 7, 6, 5, 4, 3, 2},
	)
	encMediumTable = newErasureTable(
		[]int{47, 34, 23, 14, 7, 3, 1},
		[]int{9, 8, 7, 6, 5, 4, 3},
	)
	strongTable = newErasureTable(
		[]int{105, 96, 87, 78, 70, 62, 54, 47, 40, 33, 27, 21, 16, 11, 6, 2, 1},
		[]int{21, 20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5},
	)
	encStrongTable = newErasureTable(
		[]int{52, 48, 43, 39, 35, 31, 27, 23, 20, 16, 13, 10, 8, 5, 3, 1},
		[]int{21, 20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6},
	)
	insaneTable = newErasureTable(
		[]int{93, 88, 83, 78, 74, 69, 64, 60, 55, 51, 46, 42, 38, 34, 30, 27, 23, 20, 17, 14, 11, 8, 6, 4, 2, 1},
		[]int{31, 30, 29, 28, 27, 26, 25, 24, 23, 22, 21, 20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6},
	)
	encInsaneTable = newErasureTable(
		[]int{46, 44, 41, 39, 37, 34, 32, 30, 27, 25, 23, 21, 19, 17, 15, 13, 11, 10, 8, 7, 5, 4, 3, 2, 1},
		[]int{31, 30, 29, 28, 27, 26, 25, 24, 23, 22, 21, 20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7},
	)
	paranoidTable = newErasureTable(
		[]int{37, 35, 33, 31, 29, 27, 25, 24, 22, 20, 19, 17, 16, 14, 13, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1},
		[]int{90, 88, 85, 83, 80, 77, 74, 71, 68, 65, 62, 59, 56, 53, 50, 47, 44, 41, 38, 35, 32, 29, 26, 23, 20, 17},
	)
	encParanoidTable = newErasureTable(
		[]int{18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1},
		[]int{88, 85, 82, 79, 76, 73, 70, 67, 64, 61, 58, 55, 52, 49, 46, 43, 40, 37},
	)
)

// newErasureTable panics on a malformed table; tables are package constants
func newErasureTable(shards, parities []int) *ErasureTable {
	if len(shards) != len(parities) {
		panic(fmt.Sprintf("erasure table: %d shard thresholds, %d parities", len(shards), len(parities)))
	}
	for i := 1; i < len(shards); i++ {
		if shards[i] >= shards[i-1] {
			panic(fmt.Sprintf("erasure table: shard thresholds not descending at %d", i))
		}
		if parities[i] > parities[i-1] {
			panic(fmt.Sprintf("erasure table: parities increasing at %d", i))
		}
	}
	return &ErasureTable{shards: shards, parities: parities}
}

// GetOptimalParities returns the parity count of the largest threshold not
// above maxShards, or 0 when maxShards is below every threshold
func (et *ErasureTable) GetOptimalParities(maxShards int) int {
	for i, shards := range et.shards {
		if maxShards >= shards {
			return et.parities[i]
		}
	}
	return 0
}

// Thresholds returns copies of the table's shard thresholds and parities
func (et *ErasureTable) Thresholds() (shards, parities []int) {
	return append([]int(nil), et.shards...), append([]int(nil), et.parities...)
}
