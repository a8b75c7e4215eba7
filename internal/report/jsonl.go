package report

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"jiratriage/internal/domain"
)

type jsonlRecord struct {
	RunID string `json:"run_id"`
	domain.Analysis
}

// JSONLWriter emits one JSON object per analysis per line.
type JSONLWriter struct {
	enc   *json.Encoder
	runID string
	count int
}

func NewJSONLWriter(w io.Writer, runID string) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{enc: enc, runID: runID}
}

func (w *JSONLWriter) Write(analyses ...domain.Analysis) error {
	for _, a := range analyses {
		if err := w.enc.Encode(jsonlRecord{RunID: w.runID, Analysis: a}); err != nil {
			return eris.Wrapf(err, "report: encode jsonl record %s", a.TicketKey)
		}
		w.count++
	}
	return nil
}

func (w *JSONLWriter) Count() int { return w.count }

// WriteJSONLFile truncates path and writes every analysis to it. It returns
// the number of records written.
func WriteJSONLFile(path, runID string, analyses []domain.Analysis) (int, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, eris.Wrapf(err, "report: create dir %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "report: create %s", path)
	}
	w := NewJSONLWriter(f, runID)
	if err := w.Write(analyses...); err != nil {
		_ = f.Close()
		return w.Count(), err
	}
	if err := f.Close(); err != nil {
		return w.Count(), eris.Wrapf(err, "report: close %s", path)
	}
	return w.Count(), nil
}
