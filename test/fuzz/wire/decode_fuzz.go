// Package wire fuzzes memo.Decode the way test/fuzz/mempool/checktx.go
// fuzzes mempool.CheckTx: a package-level Fuzz entrypoint over arbitrary
// bytes, checking only that a malformed buffer returns an error instead of
// panicking or corrupting slab state (spec.md §4.C wire codec: "a decode
// failure on one memo must never poison the rest of the store").
package wire

import (
	"github.com/dnorman/unbase-sub001/memo"
)

// Fuzz feeds data to memo.Decode. Returns 1 when data decodes into a memo
// (interesting input worth keeping for the corpus), 0 otherwise. For a
// decoded memo it also re-decodes memo.Encode's output and panics if that
// fails; the re-encoded bytes are not compared with data.
func Fuzz(data []byte) int {
	m, err := memo.Decode(data)
	if err != nil {
		return 0
	}

	if _, err := memo.Decode(memo.Encode(m)); err != nil {
		panic("re-decoding a memo's own encoding must never fail: " + err.Error())
	}

	return 1
}
