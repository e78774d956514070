// Package report turns the model's raw closing response into the final
// analysis artifact: figure citations get image embeds attached, and the
// report is persisted into the run directory.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/models"
)

// ReportFilename is the name of the persisted report inside a run directory.
const ReportFilename = "ANALYSIS.md"

// citationPattern matches figure citations of the form
// "Figure 2 (Page 5, Index 0)", tolerant to whitespace variation and a
// trailing period after the figure number.
var citationPattern = regexp.MustCompile(`Figure\s+(\d+)\.?\s*\(Page\s+(\d+),\s*Index\s+(\d+)\)`)

// Assembler rewrites figure citations into retrievable image embeds.
// embedBase is the URI prefix crops are served under; the full reference is
// <embedBase><runID>/files/<filename>.
type Assembler struct {
	embedBase string
	log       logger.Logger
}

// NewAssembler builds an assembler that points embeds at embedBase.
func NewAssembler(embedBase string, log logger.Logger) *Assembler {
	return &Assembler{embedBase: embedBase, log: log}
}

// InsertFigureLinks scans the report text for figure citations and appends
// an image embed after each one whose crop exists in runDir. Citations with
// no matching crop are left untouched. The scan is a single left-to-right,
// non-overlapping pass, and a citation already followed by its embed is not
// embedded again, so the operation is idempotent.
func (a *Assembler) InsertFigureLinks(artifact models.ReportArtifact, runID, runDir string) models.ReportArtifact {
	text := artifact.ReportText
	matches := citationPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return artifact
	}

	var out strings.Builder
	last := 0
	embedded := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		figureNum := text[m[2]:m[3]]
		page := text[m[4]:m[5]]
		index := text[m[6]:m[7]]

		out.WriteString(text[last:start])
		out.WriteString(text[start:end])
		last = end

		filename := a.lookupCrop(runDir, page, index)
		if filename == "" {
			continue
		}
		embed := fmt.Sprintf("\n\n![Figure %s](%s%s/files/%s)\n", figureNum, a.embedBase, runID, filename)
		if strings.HasPrefix(text[end:], embed) {
			continue
		}
		out.WriteString(embed)
		embedded++
	}
	out.WriteString(text[last:])

	a.log.Info("Embedded %d figure references across %d citations", embedded, len(matches))
	return artifact.WithReportText(out.String())
}

// lookupCrop finds the crop file for (page, index), whatever its extension.
func (a *Assembler) lookupCrop(runDir, page, index string) string {
	pattern := filepath.Join(runDir, fmt.Sprintf("page_%s_figure_%s.*", page, index))
	files, err := filepath.Glob(pattern)
	if err != nil || len(files) == 0 {
		return ""
	}
	return filepath.Base(files[0])
}

// SaveReport writes the report into the run directory with a short metadata
// header and returns a copy of the artifact carrying the storage path.
func (a *Assembler) SaveReport(artifact models.ReportArtifact, runDir string) (models.ReportArtifact, error) {
	path := filepath.Join(runDir, ReportFilename)

	var b strings.Builder
	fmt.Fprintf(&b, "# Paper Analysis: %s\n\n", artifact.SourceName)
	fmt.Fprintf(&b, "- Pages analyzed: %d\n", artifact.PageCount)
	fmt.Fprintf(&b, "- Model: %s\n", artifact.Model)
	fmt.Fprintf(&b, "- Generated: %s\n\n", artifact.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	b.WriteString("---\n\n")
	b.WriteString(artifact.ReportText)

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return artifact, fmt.Errorf("writing report: %w", err)
	}

	a.log.Info("Report saved to %s", path)
	artifact.StoragePath = path
	return artifact, nil
}
