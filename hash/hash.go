// Package hash streams a file into a whole-file SHA-256 plus a
// BlockChain of independent per-block hashes.
//
// Each block gets its own fresh hasher rather than one hasher reused
// across the whole file, so two files sharing a block's bytes always
// agree on that block's hash regardless of what precedes it — this is
// what the delta-download path's per-block equality comparison depends
// on; see DESIGN.md.
package hash

import (
	"crypto/sha256"
	"io"

	"github.com/calmh/syncit/block"
	"github.com/calmh/syncit/internal/bufpool"
)

// Hash reads r to EOF, returning the whole-file digest and the BlockChain
// tiling. A zero-length input yields a single zero-length block whose
// hash is block.EmptyHash.
func Hash(r io.Reader) (block.Sha256, block.BlockChain, error) {
	whole := sha256.New()
	chain := block.BlockChain{BlockSize: block.BlockSize}

	buf := bufpool.Get(block.BlockSize)
	defer bufpool.Put(buf)

	var offset uint64
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			whole.Write(buf[:n])
			chain.Blocks = append(chain.Blocks, block.Block{
				Offset: offset,
				Len:    uint64(n),
				Hash:   block.Sha256(sha256.Sum256(buf[:n])),
			})
			offset += uint64(n)
		}

		switch err {
		case nil:
			continue
		case io.ErrUnexpectedEOF, io.EOF:
			if len(chain.Blocks) == 0 {
				// Zero-length file: emit the single empty block.
				chain.Blocks = append(chain.Blocks, block.Block{
					Offset: 0,
					Len:    0,
					Hash:   block.EmptyHash,
				})
			}
			var sum block.Sha256
			copy(sum[:], whole.Sum(nil))
			return sum, chain, nil
		default:
			return block.Sha256{}, block.BlockChain{}, err
		}
	}
}
