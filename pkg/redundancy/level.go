// Package redundancy implements erasure coding of intermediate chunks:
// the redundancy levels, their parity tables, dispersed replica counts
// and a Reed-Solomon encoder and decoder over chunk shards.
package redundancy

import (
	"fmt"
	"strings"

	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// Level is the strength of redundancy added to uploaded data
type Level uint8

const (
	// NONE adds no redundancy
	NONE Level = iota
	// MEDIUM tolerates about 1% chunk loss
	MEDIUM
	// STRONG tolerates about 5% chunk loss
	STRONG
	// INSANE tolerates about 10% chunk loss
	INSANE
	// PARANOID tolerates about 50% chunk loss
	PARANOID
)

var levelNames = [...]string{"NONE", "MEDIUM", "STRONG", "INSANE", "PARANOID"}

// replicaCounts is the number of dispersed SOC replicas per level
var replicaCounts = [...]int{0, 2, 4, 8, 16}

// ParseLevel parses a level name, case-insensitively
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return NONE, swarm.NewValidationError(fmt.Sprintf("unknown redundancy level %q", s), nil)
}

// Valid reports whether l is a defined level
func (l Level) Valid() bool {
	return int(l) < len(levelNames)
}

func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Level(%d)", uint8(l))
	}
	return levelNames[l]
}

// MarshalText implements encoding.TextMarshaler
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, swarm.NewValidationError(fmt.Sprintf("invalid redundancy level %d", uint8(l)), nil)
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Table returns the level's erasure table, nil for NONE
func (l Level) Table(encrypted bool) *ErasureTable {
	switch l {
	case MEDIUM:
		if encrypted {
			return encMediumTable
		}
		return mediumTable
	case STRONG:
		if encrypted {
			return encStrongTable
		}
		return strongTable
	case INSANE:
		if encrypted {
			return encInsaneTable
		}
		return insaneTable
	case PARANOID:
		if encrypted {
			return encParanoidTable
		}
		return paranoidTable
	default:
		return nil
	}
}

// GetParities returns the parity count for an intermediate chunk with the
// given number of plain references
func (l Level) GetParities(shards int) int {
	if et := l.Table(false); et != nil {
		return et.GetOptimalParities(shards)
	}
	return 0
}

// GetEncParities returns the parity count for an intermediate chunk with
// the given number of encrypted references
func (l Level) GetEncParities(shards int) int {
	if et := l.Table(true); et != nil {
		return et.GetOptimalParities(shards)
	}
	return 0
}

// GetMaxShards returns how many plain references fit in an intermediate
// chunk alongside their parities
func (l Level) GetMaxShards() int {
	return constants.MaxShards - l.GetParities(constants.MaxShards)
}

// GetMaxEncShards returns how many encrypted references fit in an
// intermediate chunk alongside their parities. Parity references are
// never encrypted.
func (l Level) GetMaxEncShards() int {
	return (constants.MaxShards - l.GetEncParities(constants.MaxEncryptedShards)) / 2
}

// GetReplicaCount returns the number of dispersed replicas of a root chunk
func (l Level) GetReplicaCount() int {
	if !l.Valid() {
		return 0
	}
	return replicaCounts[l]
}

// Decrement returns the next weaker level, NONE stays NONE
func (l Level) Decrement() Level {
	if l == NONE {
		return NONE
	}
	return l - 1
}
