package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/mdsim/internal/dynamo"
)

type ExportData struct {
	Run       RunMetadata      `json:"run"`
	Steps     int              `json:"steps"`
	Summaries []dynamo.Summary `json:"summaries"`
	Snapshots []int            `json:"snapshots,omitempty"`
}

// Export writes the metadata and scalar series of a run as one JSON
// document.
func (s *Store) Export(w io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	sums, err := s.LoadScalars(runID)
	if err != nil {
		return err
	}
	snaps, err := s.Snapshots(runID)
	if err != nil {
		return err
	}
	data := ExportData{Run: *meta, Steps: len(sums), Summaries: sums, Snapshots: snaps}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
