// internal/report/row.go
package report

import (
	"fmt"
	"io"

	"shardmap/internal/assembly"
)

// Header is the first line of the result table.
const Header = "#Template\tScore\tExpected\tTemplate_length\tTemplate_Identity\tTemplate_Coverage\tQuery_Identity\tQuery_Coverage\tDepth\tq_value\tp_value"

// Row is one accepted template in the result table. Percentages are 0-100.
type Row struct {
	Template         string
	Score            uint64
	Expected         float64
	Length           int32
	TemplateIdentity float64
	TemplateCoverage float64
	QueryIdentity    float64
	QueryCoverage    float64
	Depth            float64
	QValue           float64
	PValue           float64
}

// NewRow derives the table row of one assembled template.
func NewRow(o assembly.Outcome) Row {
	j, r := o.Job, o.Result
	l := float64(len(j.Seq))
	row := Row{
		Template: j.Name,
		Score:    j.Score,
		Expected: j.Verdict.Expected,
		Length:   int32(len(j.Seq)),
		QValue:   j.Verdict.QValue,
		PValue:   j.Verdict.PValue,
	}
	if l > 0 {
		row.TemplateIdentity = 100 * float64(r.Matched) / l
		row.TemplateCoverage = 100 * float64(r.Aligned) / l
		row.Depth = float64(r.Depth) / l
	}
	if r.Aligned > 0 {
		row.QueryIdentity = 100 * float64(r.Matched) / float64(r.Aligned)
		row.QueryCoverage = 100 * l / float64(r.Aligned)
	}
	return row
}

// Reportable reports whether the row clears the identity threshold (in %).
// A template with no identity is never reported.
func (r Row) Reportable(identity float64) bool {
	return r.TemplateIdentity > 0 && r.TemplateIdentity >= identity
}

// WriteRow prints one tab-separated result line.
func WriteRow(w io.Writer, r Row) error {
	_, err := fmt.Fprintf(w, "%-12s\t%8d\t%8d\t%8d\t%8.2f\t%8.2f\t%8.2f\t%8.2f\t%8.2f\t%8.2f\t%4.1e\n",
		r.Template, r.Score, uint64(r.Expected), r.Length,
		r.TemplateIdentity, r.TemplateCoverage, r.QueryIdentity, r.QueryCoverage,
		r.Depth, r.QValue, r.PValue)
	return err
}

// WriteConsensus prints a consensus record wrapped at 60 columns.
func WriteConsensus(w io.Writer, name string, consensus []byte) error {
	if _, err := fmt.Fprintf(w, ">%s\n", name); err != nil {
		return err
	}
	for i := 0; i < len(consensus); i += 60 {
		end := i + 60
		if end > len(consensus) {
			end = len(consensus)
		}
		if _, err := fmt.Fprintf(w, "%s\n", consensus[i:end]); err != nil {
			return err
		}
	}
	return nil
}
