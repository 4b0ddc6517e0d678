// Package orderbook implements the in-memory matching engine for one
// instrument: limit, market, stop, and stop-limit orders over two
// red-black trees of FIFO price levels, with price-time priority
// matching, O(1) cancel-by-id, and a pending-stop book triggered by the
// last trade price.
//
// The book is single-writer and deterministic. It performs no I/O and
// holds no locks; callers serialize all mutating operations. Every
// mutation appends notification events to an internal buffer that the
// caller drains after the operation returns.
package orderbook
