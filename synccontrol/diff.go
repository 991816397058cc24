package synccontrol

import "github.com/calmh/syncit/block"

// diffRequests computes the block requests needed to turn local into
// remote: a request for any block where (offset,len,hash) differ between
// the two chains at the same index,
// plus every trailing block of remote beyond local's length. Trailing
// blocks of local beyond remote's length are discarded implicitly by
// truncating the temp file to remote's total size before this function
// is even consulted.
func diffRequests(dirID, filename string, local, remote block.BlockChain) []block.DownloadBlockRequest {
	var reqs []block.DownloadBlockRequest

	n := len(local.Blocks)
	if len(remote.Blocks) < n {
		n = len(remote.Blocks)
	}

	for i := 0; i < n; i++ {
		l, r := local.Blocks[i], remote.Blocks[i]
		if l.Offset != r.Offset || l.Len != r.Len || l.Hash != r.Hash {
			reqs = append(reqs, requestFor(dirID, filename, r))
		}
	}
	for i := n; i < len(remote.Blocks); i++ {
		reqs = append(reqs, requestFor(dirID, filename, remote.Blocks[i]))
	}

	return reqs
}

// allRequests requests every block of a chain, used for full downloads
// (new files, and the conflict / equal-gen-remote-newer paths which take
// no delta).
func allRequests(dirID, filename string, chain block.BlockChain) []block.DownloadBlockRequest {
	reqs := make([]block.DownloadBlockRequest, 0, len(chain.Blocks))
	for _, b := range chain.Blocks {
		reqs = append(reqs, requestFor(dirID, filename, b))
	}
	return reqs
}

func requestFor(dirID, filename string, b block.Block) block.DownloadBlockRequest {
	return block.DownloadBlockRequest{
		DirID:    dirID,
		Filename: filename,
		Offset:   b.Offset,
		Len:      b.Len,
		Hash:     b.Hash,
	}
}
