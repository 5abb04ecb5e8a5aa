package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// MapStatHeader names the per-template columns of the extended feature
// report.
const MapStatHeader = "# refSequence\treadCount\tfragmentCount\tmapScoreSum\trefCoveredPositions\trefConsensusSum\tbpTotal"

// MapStatMeta is the preamble of the extended feature report.
type MapStatMeta struct {
	Version   string
	Databases []string
	Fragments uint64
	Date      time.Time
	Command   []string
}

// WriteMapStatHeader prints the preamble and column header.
func WriteMapStatHeader(w io.Writer, m MapStatMeta) error {
	_, err := fmt.Fprintf(w,
		"## method\tshardmap\n## version\t%s\n## databases\t%s\n## fragmentCount\t%d\n## date\t%s\n## command\t%s\n%s\n",
		m.Version, strings.Join(m.Databases, ","), m.Fragments,
		m.Date.Format("2006-01-02"), strings.Join(m.Command, " "), MapStatHeader)
	return err
}

// MapStat is one template line of the extended feature report.
type MapStat struct {
	Template       string
	Reads          uint64
	Fragments      uint64
	ScoreSum       uint64
	Covered        int
	ConsensusDepth uint64
	Bases          uint64
}

// WriteMapStat prints one template line.
func WriteMapStat(w io.Writer, s MapStat) error {
	_, err := fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
		s.Template, s.Reads, s.Fragments, s.ScoreSum, s.Covered, s.ConsensusDepth, s.Bases)
	return err
}
