package exthash

import (
	"log/slog"

	"exthash/backend/hashkey"
)

// DefaultGlobalDepth and DefaultBlockSize are the construction defaults
// used when no option overrides them.
const (
	DefaultGlobalDepth = 32
	DefaultBlockSize   = 1024
)

// Project extracts a key's byte representation from a record.
type Project func(record []byte) []byte

// Equal compares two projected keys for equality.
type Equal func(a, b []byte) bool

// Config carries the construction parameters of an index, assembled via
// functional options over a small typed struct.
type Config struct {
	RecordSize  int64
	GlobalDepth int
	BlockSize   int64
	PrimaryKey  bool
	CapacityCap int // 0 means unbounded

	Project Project
	Equal   Equal
	Hash    hashkey.HashFunc

	Logger *slog.Logger
}

// Option configures a Config.
type Option func(*Config)

// NewConfig builds a Config for records of recordSize bytes with proj and
// eq supplied by the caller, applying defaults for everything else, then
// any options in order.
func NewConfig(recordSize int64, proj Project, eq Equal, opts ...Option) Config {
	cfg := Config{
		RecordSize:  recordSize,
		GlobalDepth: DefaultGlobalDepth,
		BlockSize:   DefaultBlockSize,
		PrimaryKey:  true,
		Project:     proj,
		Equal:       eq,
		Logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithGlobalDepth overrides D, the maximum address width in bits.
func WithGlobalDepth(d int) Option {
	return func(c *Config) { c.GlobalDepth = d }
}

// WithBlockSize overrides B, the bucket block size in bytes.
func WithBlockSize(b int64) Option {
	return func(c *Config) { c.BlockSize = b }
}

// WithPrimaryKey switches between primary-key mode (duplicates rejected)
// and secondary mode (duplicates accepted, search may return many).
func WithPrimaryKey(primary bool) Option {
	return func(c *Config) { c.PrimaryKey = primary }
}

// WithCapacityCap sets a configurable limit on overflow chain length,
// opting into CapacityExhausted errors. n <= 0 disables the cap (the
// default: unbounded chains).
func WithCapacityCap(n int) Option {
	return func(c *Config) { c.CapacityCap = n }
}

// WithHash overrides the key-hash callable; nil (the default) selects
// hashkey.DefaultHash.
func WithHash(fn hashkey.HashFunc) Option {
	return func(c *Config) { c.Hash = fn }
}

// WithLogger overrides the structured logger threaded through the Facade.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
