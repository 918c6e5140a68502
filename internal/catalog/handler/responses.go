package handler

import (
	"github.com/google/uuid"

	"dex/internal/catalog/models"
	"dex/internal/catalog/query"
)

type RefreshResponse struct {
	RunID uuid.UUID `json:"run_id"`
}

// ViewResponse is the filtered view of a catalog.
type ViewResponse struct {
	Query  string                `json:"query"`
	RunID  uuid.UUID             `json:"run_id"`
	Status models.RunStatus      `json:"status"`
	Ledger models.Ledger         `json:"ledger"`
	Items  []models.DetailRecord `json:"items"`
}

type StatusResponse struct {
	RunID      uuid.UUID        `json:"run_id"`
	Status     models.RunStatus `json:"status"`
	Total      int              `json:"total"`
	Completed  int              `json:"completed"`
	Failed     int              `json:"failed"`
	Duplicates int              `json:"duplicates"`
}

func FromResult(res query.Result) ViewResponse {
	items := res.Items
	if items == nil {
		items = []models.DetailRecord{}
	}
	return ViewResponse{
		Query:  res.Query,
		RunID:  res.Snapshot.RunID,
		Status: res.Snapshot.Status(),
		Ledger: res.Snapshot.Ledger,
		Items:  items,
	}
}

func FromSnapshot(snap models.Snapshot) StatusResponse {
	return StatusResponse{
		RunID:      snap.RunID,
		Status:     snap.Status(),
		Total:      snap.Ledger.Total,
		Completed:  snap.Ledger.Completed,
		Failed:     snap.Ledger.Failed,
		Duplicates: snap.Ledger.Duplicates,
	}
}
