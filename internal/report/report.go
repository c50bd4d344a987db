package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	natomic "github.com/natefinch/atomic"
)

type Summary struct {
	Total      int          `json:"total"`
	Allowed    int          `json:"allowed"`
	Blocked    int          `json:"blocked"`
	TopRules   []CountItem  `json:"top_rules"`
	TopBlocked []CountItem  `json:"top_blocked_ips"`
	Scores     ScoreSummary `json:"scores"`
}

type CountItem struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type ScoreSummary struct {
	Max int     `json:"max"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Reader loads JSONL scan reports. A non-empty Decision keeps only rows
// with that decision.
type Reader struct {
	Decision string
}

func (r *Reader) Read(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows []Row
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row Row
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if r.Decision != "" && row.Decision != r.Decision {
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func Summarize(rows []Row) Summary {
	var summary Summary
	if len(rows) == 0 {
		return summary
	}

	ruleCounts := map[string]int{}
	blockedCounts := map[string]int{}
	scores := make([]int, 0, len(rows))

	for _, row := range rows {
		summary.Total++
		switch row.Decision {
		case "allow":
			summary.Allowed++
		case "block":
			summary.Blocked++
			if row.IP != "" {
				blockedCounts[row.IP]++
			}
		}

		for _, id := range row.RuleIDs() {
			ruleCounts[id]++
		}
		scores = append(scores, row.Score)
	}

	summary.TopRules = topCounts(ruleCounts, 5)
	summary.TopBlocked = topCounts(blockedCounts, 5)
	summary.Scores = scoreSummary(scores)

	return summary
}

func topCounts(counts map[string]int, n int) []CountItem {
	items := make([]CountItem, 0, len(counts))
	for key, count := range counts {
		items = append(items, CountItem{Key: key, Count: count})
	}
	if len(items) == 0 {
		return nil
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			return items[i].Key < items[j].Key
		}
		return items[i].Count > items[j].Count
	})

	if len(items) > n {
		items = items[:n]
	}
	return items
}

func scoreSummary(values []int) ScoreSummary {
	if len(values) == 0 {
		return ScoreSummary{}
	}
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)

	return ScoreSummary{
		Max: sorted[len(sorted)-1],
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
		P99: percentile(sorted, 0.99),
	}
}

// percentile uses nearest rank on sorted values.
func percentile(values []int, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	idx := int(float64(len(values)-1) * p)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return float64(values[idx])
}

func RenderText(summary Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total: %d\n", summary.Total)
	fmt.Fprintf(&b, "Allowed: %d\n", summary.Allowed)
	fmt.Fprintf(&b, "Blocked: %d\n", summary.Blocked)
	fmt.Fprintf(&b, "Score p50/p95/p99/max: %.0f/%.0f/%.0f/%d\n", summary.Scores.P50, summary.Scores.P95, summary.Scores.P99, summary.Scores.Max)

	writeCounts(&b, "Top matched rules", summary.TopRules)
	writeCounts(&b, "Top blocked IPs", summary.TopBlocked)

	return b.String()
}

func RenderMarkdown(summary Summary) string {
	var b strings.Builder
	b.WriteString("# waflite scan report\n\n")
	b.WriteString("## Totals\n\n")
	fmt.Fprintf(&b, "- Total: %d\n", summary.Total)
	fmt.Fprintf(&b, "- Allowed: %d\n", summary.Allowed)
	fmt.Fprintf(&b, "- Blocked: %d\n", summary.Blocked)
	fmt.Fprintf(&b, "- Score p50/p95/p99/max: %.0f/%.0f/%.0f/%d\n\n", summary.Scores.P50, summary.Scores.P95, summary.Scores.P99, summary.Scores.Max)

	writeCountsMarkdown(&b, "Top matched rules", summary.TopRules)
	writeCountsMarkdown(&b, "Top blocked IPs", summary.TopBlocked)

	return b.String()
}

func RenderJSON(summary Summary) ([]byte, error) {
	return json.MarshalIndent(summary, "", "  ")
}

// Render formats summary as text, markdown or json.
func Render(summary Summary, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return []byte(RenderText(summary)), nil
	case "md", "markdown":
		return []byte(RenderMarkdown(summary)), nil
	case "json":
		out, err := RenderJSON(summary)
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	default:
		return nil, fmt.Errorf("unsupported summary format %q", format)
	}
}

func writeCounts(b *strings.Builder, title string, items []CountItem) {
	if len(items) == 0 {
		fmt.Fprintf(b, "%s: none\n", title)
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s: %d\n", item.Key, item.Count)
	}
}

func writeCountsMarkdown(b *strings.Builder, title string, items []CountItem) {
	b.WriteString("## ")
	b.WriteString(title)
	b.WriteString("\n\n")
	if len(items) == 0 {
		b.WriteString("- none\n\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s: %d\n", item.Key, item.Count)
	}
	b.WriteString("\n")
}

// WriteOutput writes content to path, or to stdout when path is empty.
func WriteOutput(path string, content []byte) error {
	if path == "" {
		_, err := io.Copy(os.Stdout, bytes.NewReader(content))
		return err
	}
	return natomic.WriteFile(path, bytes.NewReader(content))
}
