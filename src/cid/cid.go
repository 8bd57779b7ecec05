package cid

import (
	"strings"

	"github.com/eduverse-labs/eduverse/src/oops"
	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// NoContent is stored on-chain for sections that have no video.
const NoContent = "no-content"

var schemePrefixes = []string{
	"ipfs://ipfs/",
	"ipfs://",
	"/ipfs/",
	"ipfs/",
}

// Normalize strips storage-scheme prefixes and gateway hosts so that
// "ipfs://bafy...", "/ipfs/bafy..." and "https://ipfs.io/ipfs/bafy..." all
// become "bafy...". Anything after the identifier (a path inside a
// directory CID) is kept.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, "://"); idx >= 0 && !strings.HasPrefix(s, "ipfs://") {
		if p := strings.Index(s, "/ipfs/"); p >= 0 {
			s = s[p+len("/ipfs/"):]
		}
	}
	for _, prefix := range schemePrefixes {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.Trim(s, "/")
	if q := strings.IndexAny(s, "?#"); q >= 0 {
		s = s[:q]
	}
	return s
}

// Root returns the identifier part of a normalized value, without any path.
func Root(normalized string) string {
	if slash := strings.IndexByte(normalized, '/'); slash >= 0 {
		return normalized[:slash]
	}
	return normalized
}

func IsNoContent(s string) bool {
	return s == "" || s == NoContent
}

// Validate checks that raw (after normalization) starts with a parseable
// content identifier.
func Validate(raw string) error {
	s := Normalize(raw)
	if IsNoContent(s) {
		return oops.New(nil, "no content identifier given")
	}
	if _, err := gocid.Decode(Root(s)); err != nil {
		return oops.New(err, "invalid content identifier %q", raw)
	}
	return nil
}

var rawPrefix = gocid.Prefix{
	Version:  1,
	Codec:    gocid.Raw,
	MhType:   multihash.SHA2_256,
	MhLength: -1,
}

// Compute returns the CIDv1 (raw codec, sha2-256) of data. This matches what
// pinning services report for single-block files.
func Compute(data []byte) (string, error) {
	c, err := rawPrefix.Sum(data)
	if err != nil {
		return "", oops.New(err, "failed to compute content identifier")
	}
	return c.String(), nil
}
