package bench

import (
	"encoding/csv"
	"io"
	"strconv"
)

var csvHeader = []string{"noise", "trials", "mean_errors", "min_errors", "max_errors", "ber"}

// WriteCSV writes one row per point after a header row.
func WriteCSV(w io.Writer, points []Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range points {
		row := []string{
			formatFloat(p.Noise),
			strconv.Itoa(p.Trials),
			formatFloat(p.MeanErrors),
			strconv.Itoa(p.MinErrors),
			strconv.Itoa(p.MaxErrors),
			formatFloat(p.BER),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
