package report

import (
	"strconv"
	"strings"

	"github.com/waflite/waflite/internal/normalize"
	"github.com/waflite/waflite/internal/policy"
)

// Row is one scanned log line.
type Row struct {
	IP       string `json:"ip"`
	Req      string `json:"req"`
	UA       string `json:"ua"`
	Status   int    `json:"st"`
	Score    int    `json:"scr"`
	Decision string `json:"dec"`
	Matched  string `json:"m"`
}

var csvHeader = []string{"ip", "req", "ua", "st", "scr", "dec", "m"}

func NewRow(rec normalize.Record, verdict policy.Verdict) Row {
	return Row{
		IP:       rec.IP,
		Req:      rec.Req,
		UA:       rec.UA,
		Status:   rec.Status,
		Score:    verdict.Score,
		Decision: string(verdict.Decision),
		Matched:  strings.Join(verdict.Matched, ","),
	}
}

// RuleIDs splits the matched column back into ids.
func (r Row) RuleIDs() []string {
	if r.Matched == "" {
		return nil
	}
	return strings.Split(r.Matched, ",")
}

func (r Row) csvRecord() []string {
	return []string{
		r.IP,
		r.Req,
		r.UA,
		strconv.Itoa(r.Status),
		strconv.Itoa(r.Score),
		r.Decision,
		r.Matched,
	}
}
