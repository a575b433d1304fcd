package gbm

import (
	"encoding/binary"

	spooky "github.com/dgryski/go-spooky"
)

//mixSeed derives one deterministic rng seed from a list of stream
//coordinates (run seed, iteration, partition id, base model index, ...).
//Identical coordinates always yield the identical stream.
func mixSeed(parts ...int64) int64 {
	buf := make([]byte, 8*len(parts))
	for i, p := range parts {
		binary.LittleEndian.PutUint64(buf[8*i:], uint64(p))
	}
	return int64(spooky.Hash64(buf))
}

//hashColumn hashes a column index under a selector seed.
func hashColumn(col int, seed uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(col))
	h1, h2 := seed, uint64(0)
	spooky.Hash128(buf[:], &h1, &h2)
	return h1
}
