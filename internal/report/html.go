package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/dustin/go-humanize"
	"github.com/jon4hz/arrscore/internal/analyzer"
	"github.com/jon4hz/arrscore/internal/database"
	"github.com/mergestat/timediff"
)

//go:embed templates/*.html
var templatesFS embed.FS

var funcs = template.FuncMap{
	"bytes":       humanBytes,
	"fileSize":    fileSize,
	"display":     func(r database.ScoreRecord) string { return r.DisplayName() },
	"since":       timeAgo,
	"score":       func(f float64) string { return fmt.Sprintf("%.1f", f) },
	"signed":      func(n int) string { return fmt.Sprintf("%+d", n) },
	"formats":     FormatList,
	"buckets":     func() []string { return analyzer.Buckets },
	"gradeClass":  gradeClass,
	"impactClass": func(impact string) string { return "impact-" + impact },
}

var htmlTemplate = template.Must(template.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.html"))

// WriteHTML renders the health report as a standalone HTML page.
func WriteHTML(w io.Writer, health *analyzer.HealthReport) error {
	return htmlTemplate.ExecuteTemplate(w, "report.html", health)
}

func humanBytes(size int64) string {
	n, err := safecast.Convert[uint64](size)
	if err != nil {
		return "-"
	}
	return humanize.IBytes(n)
}

func fileSize(size *int64) string {
	if size == nil || *size <= 0 {
		return "-"
	}
	return humanBytes(*size)
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return timediff.TimeDiff(t)
}

func gradeClass(grade string) string {
	switch grade {
	case "A", "B":
		return "grade-good"
	case "C", "D":
		return "grade-fair"
	default:
		return "grade-poor"
	}
}
