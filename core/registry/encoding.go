package registry

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/artpar/schemagate/core/schema"
)

// encodingFormat is bumped whenever the encoded layout changes.
const encodingFormat = 1

// encMode produces canonical CBOR, so equal snapshots encode to equal bytes.
var encMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("registry: canonical cbor mode: " + err.Error())
	}
	return em
}()

type encodedSnapshot struct {
	Format int
	Nodes  []schema.TypeNode
}

func encodeNodes(nodes []schema.TypeNode) ([]byte, error) {
	data, err := encMode.Marshal(encodedSnapshot{Format: encodingFormat, Nodes: nodes})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Digest returns the hex BLAKE2b-256 digest of data.
func Digest(data []byte) string {
	return digest(data)
}

// Encode returns the canonical encoding of the snapshot. Decode(Encode())
// yields a snapshot with the same Version.
func (s *Snapshot) Encode() ([]byte, error) {
	return encodeNodes(s.nodes)
}

// Decode rebuilds and re-seals a snapshot from its canonical encoding.
func Decode(data []byte) (*Snapshot, error) {
	var enc encodedSnapshot
	if err := cbor.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if enc.Format != encodingFormat {
		return nil, fmt.Errorf("decode snapshot: unsupported format %d", enc.Format)
	}

	r, err := FromNodes(enc.Nodes)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return r.Seal()
}

// Build registers nodes and seals them in one step.
func Build(nodes []schema.TypeNode) (*Snapshot, error) {
	r, err := FromNodes(nodes)
	if err != nil {
		return nil, err
	}
	return r.Seal()
}
