/*
csv.go - Full-trail CSV export

PURPOSE:
  Streams the deal collection as CSV for offline analysis. One row per
  deal, pending deals with empty closed-state columns. The caller supplies
  deals already ordered (ListAll gives ID ascending).
*/
package stats

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/warp/deal-engine/ledger"
)

var csvHeader = []string{
	"id", "status",
	"setter_id", "setter_name",
	"closer_id", "closer_name",
	"system_size_kw", "revenue",
	"set_at", "closed_at",
}

// WriteCSV writes the deals to w, header first.
func WriteCSV(w io.Writer, deals []*ledger.Deal) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, d := range deals {
		row := []string{
			strconv.FormatInt(d.ID, 10),
			string(d.Status),
			string(d.SetterID),
			d.SetterName,
			"", "", "", "",
			d.SetAt.UTC().Format(time.RFC3339),
			"",
		}
		if d.IsClosed() {
			row[4] = string(d.CloserID)
			row[5] = d.CloserName
			row[6] = d.SystemSize.Value.String()
			row[7] = d.Revenue.Value.String()
			row[9] = d.ClosedAt.UTC().Format(time.RFC3339)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
