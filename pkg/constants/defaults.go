// Package constants defines the protocol sizes shared by every swarmkit package
// and the runtime defaults used by the configuration layer.
package constants

import "time"

// Chunk Layout
const (
	// SegmentSize is the size of one BMT leaf (and of a Keccak-256 digest)
	SegmentSize = 32

	// SegmentsCount is the fixed number of BMT leaves per chunk
	SegmentsCount = 128

	// DataSize is the maximum chunk payload, 4 KiB
	DataSize = SegmentSize * SegmentsCount

	// SpanSize is the little-endian length prefix of a CAC
	SpanSize = 8

	// ChunkWithSpanSize is the largest CAC wire encoding
	ChunkWithSpanSize = SpanSize + DataSize

	// HashSize is the size of a Keccak-256 digest
	HashSize = 32

	// EncryptedReferenceSize is a hash followed by a 32-byte decryption key
	EncryptedReferenceSize = 2 * HashSize

	// MaxPO is the highest proximity order between two addresses
	MaxPO uint8 = 31
)

// Single Owner Chunks
const (
	// IdentifierSize is the SOC identifier length
	IdentifierSize = 32

	// SignatureSize is a recoverable secp256k1 signature (r ‖ s ‖ v)
	SignatureSize = 65

	// OwnerSize is an Ethereum address
	OwnerSize = 20

	// SocMinChunkSize is identifier ‖ signature ‖ span with empty payload
	SocMinChunkSize = IdentifierSize + SignatureSize + SpanSize

	// SocMaxChunkSize is a SOC wrapping a full CAC
	SocMaxChunkSize = SocMinChunkSize + DataSize
)

// Feeds
const (
	// EpochMaxLevel bounds the epoch tree; level 32 epochs span 2^32 seconds
	EpochMaxLevel uint8 = 32

	// TimestampSize prefixes epoch feed payloads (big-endian unix seconds)
	TimestampSize = 8

	// TopicSize is the feed topic length
	TopicSize = 32
)

// Postage
const (
	// BucketDepth is the number of leading address bits that select a bucket
	BucketDepth uint8 = 16

	// BucketsCount is the number of collision buckets per batch
	BucketsCount = 1 << BucketDepth

	// MinBatchDepth is the shallowest batch the network accepts
	MinBatchDepth uint8 = BucketDepth + 1

	// BatchIDSize is the postage batch identifier length
	BatchIDSize = 32

	// StampIndexSize is the bucket ‖ index-in-bucket field
	StampIndexSize = 8

	// StampTimestampSize is the big-endian issue time in seconds
	StampTimestampSize = 8

	// StampSize is a full postage stamp
	StampSize = BatchIDSize + StampIndexSize + StampTimestampSize + SignatureSize
)

// Redundancy
const (
	// MaxShards is the number of references an intermediate chunk holds
	MaxShards = SegmentsCount

	// MaxEncryptedShards is the number of encrypted references an intermediate chunk holds
	MaxEncryptedShards = SegmentsCount / 2
)

// Runtime Defaults
const (
	// Feed lookups issue at most a few dozen sequential fetches; bound the whole walk
	DefaultLookupTimeout = 30 * time.Second

	// Chunks kept in the validated read cache
	DefaultCacheSize = 4096

	// Default path for the persistent chunk store
	DefaultStorePath = "./chunks"

	// Forward probes per sequence lookup before giving up
	DefaultSequenceProbeLimit = 1 << 16
)
