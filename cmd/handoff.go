package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
)

var errNotReady = eris.New("record is not ready for handoff")

type handoffReader interface {
	GetRecord(ctx context.Context, id string) (*model.Record, error)
	GetHandoff(ctx context.Context, recordID string) (*model.Handoff, error)
}

// loadHandoff returns the handoff for a record that completed the pipeline.
func loadHandoff(ctx context.Context, st handoffReader, id string) (*model.Handoff, error) {
	r, err := st.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != model.StatusReadyForHandoff {
		return nil, eris.Wrapf(errNotReady, "record %s is %s", id, r.Status)
	}
	return st.GetHandoff(ctx, id)
}
