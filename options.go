// Copyright (c) 2024 LevelGraph Go Contributors
//
// Permission is hereby granted, free of charge, to any person
// obtaining a copy of this software and associated documentation
// files (the "Software"), to deal in the Software without
// restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the
// Software is furnished to do so, subject to the following
// conditions:
//
// The above copyright notice and this permission notice shall be
// included in all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package hnswkv

import "log/slog"

// Options configures the behavior of a Server (registry + store pair).
type Options struct {
	// Logger receives structured diagnostics for every operation. Defaults
	// to slog.Default() if nil.
	Logger *slog.Logger

	// KeyPrefix is prepended to every persisted record's key, forming
	// "<prefix>.<index>" and "<prefix>.<index>.<node>".
	KeyPrefix string

	// DefaultEfSearch is applied to every index as its Search candidate-list
	// width floor when the index is created or rehydrated; it is still
	// floored to k at query time regardless.
	DefaultEfSearch int
}

// Option is a function that configures Options.
type Option func(*Options)

// defaultOptions returns the default configuration.
func defaultOptions() *Options {
	return &Options{
		Logger:          slog.Default(),
		KeyPrefix:       "hnswidx",
		DefaultEfSearch: 64,
	}
}

// applyOptions applies a list of option functions to an Options struct.
func applyOptions(opts ...Option) *Options {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return options
}

// WithLogger sets the logger used for structured diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithKeyPrefix sets the key prefix used for persisted records. The prefix
// is used as given; its length is not checked here or by the persistence
// adapter.
func WithKeyPrefix(prefix string) Option {
	return func(o *Options) {
		o.KeyPrefix = prefix
	}
}

// WithDefaultEfSearch sets the default ef_search candidate-list width.
func WithDefaultEfSearch(ef int) Option {
	return func(o *Options) {
		o.DefaultEfSearch = ef
	}
}
