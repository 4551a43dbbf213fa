package store

import (
	"fmt"
	"io"

	"github.com/cfoust/particles/pkg/particles"

	"github.com/fxamacker/cbor/v2"
)

type snapshot struct {
	Version   int                `cbor:"version"`
	Particles []particles.Detail `cbor:"particles"`
}

const snapshotVersion = 1

// Snapshot writes every confirmed particle to w as CBOR.
func (t *Tree) Snapshot(w io.Writer) error {
	data := snapshot{Version: snapshotVersion}
	for _, p := range t.Particles() {
		if p.IsPending() {
			continue
		}
		data.Particles = append(data.Particles, p.Detail())
	}

	bytes, err := cbor.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = w.Write(bytes)
	return err
}

// Restore loads particles written by Snapshot, replacing any stored under
// the same ids. It returns the number of particles loaded.
func (t *Tree) Restore(r io.Reader) (int, error) {
	var data snapshot
	if err := cbor.NewDecoder(r).Decode(&data); err != nil {
		return 0, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if data.Version != snapshotVersion {
		return 0, fmt.Errorf("unsupported snapshot version %d", data.Version)
	}

	logger := t.Logger()
	loaded := 0
	for _, detail := range data.Particles {
		p, err := t.factory.FromDetail(detail)
		if err != nil {
			logger.Warn().Err(err).Uint32("id", detail.ID).Msg("skipping particle in snapshot")
			continue
		}
		if err := t.Add(p); err != nil {
			return loaded, err
		}
		loaded++
	}

	return loaded, nil
}
