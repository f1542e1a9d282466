package formatter

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/fatih/color"
	"github.com/zfogg/photostream/cli/pkg/api"
	"github.com/zfogg/photostream/cli/pkg/output"
)

var (
	Bold    = color.New(color.Bold)
	Success = color.New(color.FgGreen)
	Error   = color.New(color.FgRed)
	Info    = color.New(color.FgCyan)
	Warning = color.New(color.FgYellow)
)

// DescriptionWidth is where photo descriptions are cut in tables
const DescriptionWidth = 48

// PhotoHeaders are the columns PhotoRows produces
var PhotoHeaders = []string{"ID", "VOTES", "COMMENTS", "LIKED", "MINE", "DESCRIPTION"}

// CommentHeaders are the columns CommentRows produces
var CommentHeaders = []string{"ID", "MINE", "MESSAGE"}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	output.PrintSuccess(format, args...)
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	output.PrintError(format, args...)
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...interface{}) {
	output.PrintInfo(format, args...)
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	output.PrintWarning(format, args...)
}

// PrintTable prints rows under headers
func PrintTable(headers []string, rows [][]string) {
	_ = output.PrintList("", rows, headers, rows)
}

// PrintJSON prints data as JSON using the centralized output service
func PrintJSON(data interface{}) error {
	return output.Print("", data)
}

// PrintKeyValue prints key-value pairs using the centralized output service
func PrintKeyValue(data map[string]interface{}) {
	_ = output.PrintRecord("", data)
}

// PhotoRows renders photos as table rows
func PhotoRows(photos []api.Photo) [][]string {
	rows := make([][]string, 0, len(photos))
	for _, p := range photos {
		rows = append(rows, []string{
			strconv.Itoa(p.ID),
			humanize.Comma(int64(p.Votes)),
			strconv.Itoa(p.CommentCount),
			yesNo(p.Liked),
			yesNo(p.Deleteable),
			Truncate(p.Description, DescriptionWidth),
		})
	}
	return rows
}

// CommentRows renders comments as table rows
func CommentRows(comments []api.Comment) [][]string {
	rows := make([][]string, 0, len(comments))
	for _, c := range comments {
		rows = append(rows, []string{
			strconv.Itoa(c.ID),
			yesNo(c.Deleteable),
			c.Message,
		})
	}
	return rows
}

// PhotoRecord flattens a photo for PrintRecord
func PhotoRecord(p *api.Photo) map[string]interface{} {
	record := map[string]interface{}{
		"id":          p.ID,
		"description": p.Description,
		"votes":       p.Votes,
		"comments":    Count(p.CommentCount, "comment", "comments"),
		"liked":       p.Liked,
		"deleteable":  p.Deleteable,
	}
	if p.ImagePath != "" {
		record["image"] = p.ImagePath
	}
	return record
}

// Count renders n with singular or plural; an empty plural falls back to
// english pluralization rules
func Count(n int, singular, plural string) string {
	return english.Plural(n, singular, plural)
}

// Bytes renders a size for humans
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// Ago renders a timestamp relative to now
func Ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// Truncate shortens s to at most width runes, marking the cut
func Truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if width <= 0 || len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
