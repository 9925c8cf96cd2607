package store

import (
	"context"
	"fmt"

	"positionScope/internal/model"
)

// SnapshotSink receives position snapshots for export to an analytics store.
type SnapshotSink interface {
	WriteSnapshots(ctx context.Context, snapshots []model.PositionSnapshot) error
}

// Mirror exports the snapshots of every batch to the sink, then commits the batch
// to the primary committer. A batch whose primary commit fails is exported again
// on retry, so the sink must tolerate repeated snapshot ids.
type Mirror struct {
	primary  Committer
	sink     SnapshotSink
	exported int
}

func NewMirror(primary Committer, sink SnapshotSink) *Mirror {
	return &Mirror{primary: primary, sink: sink}
}

func (m *Mirror) LoadCursor(ctx context.Context) (Cursor, bool, error) {
	return m.primary.LoadCursor(ctx)
}

func (m *Mirror) Commit(ctx context.Context, changes *Changes) error {
	m.exported = 0
	snapshots := changes.SnapshotList()
	if len(snapshots) > 0 && m.sink != nil {
		if err := m.sink.WriteSnapshots(ctx, snapshots); err != nil {
			return fmt.Errorf("export snapshots: %w", err)
		}
	}
	if err := m.primary.Commit(ctx, changes); err != nil {
		return err
	}
	if m.sink != nil {
		m.exported = len(snapshots)
	}
	return nil
}

// Exported returns the number of snapshots exported by the last successful Commit.
func (m *Mirror) Exported() int {
	return m.exported
}
