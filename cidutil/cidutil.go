// Package cidutil derives and checks the CIDv1 identifiers used for archived
// segments and verifying-key objects. A segment's CID is the only durable
// reference other systems should keep, so derivation lives in one place.
package cidutil

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// SegmentCID returns the CIDv1 string (raw multicodec, sha2-256 multihash)
// for a serialized segment or any other canonical byte payload.
func SegmentCID(data []byte) string {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum only errors for invalid parameters; with SHA2_256 and
		// default length this is unreachable.
		return ""
	}
	return cid.NewCidV1(cid.Raw, sum).String()
}

// SegmentCIDv1 returns the parsed cid.Cid for data.
func SegmentCIDv1(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Matches reports whether data hashes to the CID encoded in s.
// An unparseable s never matches.
func Matches(s string, data []byte) bool {
	want, err := cid.Decode(s)
	if err != nil || !want.Defined() {
		return false
	}
	got, err := SegmentCIDv1(data)
	if err != nil {
		return false
	}
	return got.Equals(want)
}
