package export

import (
	"encoding/csv"
	"io"

	"github.com/viniciushammett/go-threat-monitor/internal/model"
)

var header = []string{"id", "timestamp", "source", "attack_type", "severity", "ip", "evidence"}

func WriteCSV(w io.Writer, events []model.DetectionEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range events {
		err := cw.Write([]string{
			e.ID, e.Timestamp.Format(model.TimeLayout), e.Source, string(e.Category), e.Severity, e.Subject, e.Evidence,
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
