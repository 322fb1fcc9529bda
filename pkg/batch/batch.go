// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package batch reads the line-oriented rule and query stream, classifies
// every query and writes one answer line per valid query.
//
// The stream is a rule count n, n lines of "<cidr> <label>", a query
// count m and m lines holding one address each. A header that is not a
// non-negative integer aborts the run with ErrFatalInput. Malformed rule
// and query lines are logged and skipped; a skipped rule still consumes
// its original index.
package batch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/ebpf-microsegment/firstmatch/pkg/classifier"
	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
)

var (
	// ErrFatalInput is returned when a count header is missing or invalid.
	ErrFatalInput = errors.New("fatal input")

	// ErrMalformedRule wraps the diagnostic of a skipped rule line.
	ErrMalformedRule = errors.New("malformed rule")

	// ErrMalformedQuery wraps the diagnostic of a skipped query line.
	ErrMalformedQuery = errors.New("malformed query")
)

const (
	maxLineSize = 1 << 20

	// upper bound of the table preallocation taken from the rule count
	maxSizeHint = 1 << 22
)

// Report summarizes a batch run
type Report struct {
	RulesExpected  int `json:"rules_expected"`
	RulesRead      int `json:"rules_read"`
	RulesAccepted  int `json:"rules_accepted"`
	RulesSkipped   int `json:"rules_skipped"`
	UniquePrefixes int `json:"unique_prefixes"`

	QueriesExpected int `json:"queries_expected"`
	QueriesRead     int `json:"queries_read"`
	QueriesAnswered int `json:"queries_answered"`
	QueriesSkipped  int `json:"queries_skipped"`

	// Diagnostics holds the kept per-line errors, DroppedDiagnostics
	// counts those over the cap
	Diagnostics        *multierror.Error `json:"-"`
	DroppedDiagnostics int               `json:"dropped_diagnostics"`

	maxDiagnostics int
}

// Err returns the aggregated diagnostics, or nil if every line was valid.
func (r *Report) Err() error {
	return r.Diagnostics.ErrorOrNil()
}

func (r *Report) diagnose(err error) {
	log.Warn(err)
	if r.maxDiagnostics > 0 && r.Diagnostics != nil && r.Diagnostics.Len() >= r.maxDiagnostics {
		r.DroppedDiagnostics++
		return
	}
	r.Diagnostics = multierror.Append(r.Diagnostics, err)
}

// errLineTooLong marks a line over maxLineSize. The reader has already
// skipped to the next line, so the caller may continue.
var errLineTooLong = fmt.Errorf("line exceeds %d bytes", maxLineSize)

type lineReader struct {
	r    *bufio.Reader
	line int
}

func newLineReader(in io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(in, 64*1024)}
}

// next returns the next line without its line ending. ok is false at end
// of stream. A line over maxLineSize is consumed up to its newline and
// reported as errLineTooLong with ok true.
func (lr *lineReader) next() (line string, ok bool, err error) {
	var buf []byte
	tooLong := false
	read := 0

	for {
		frag, err := lr.r.ReadSlice('\n')
		read += len(frag)
		if !tooLong {
			if len(buf)+len(frag) > maxLineSize+1 {
				tooLong, buf = true, nil
			} else {
				buf = append(buf, frag...)
			}
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if read == 0 {
				return "", false, nil
			}
			break
		}
		if err != nil {
			return "", false, fmt.Errorf("failed to read line %d: %w", lr.line+1, err)
		}
		break
	}

	lr.line++
	if tooLong {
		return "", true, errLineTooLong
	}
	line = strings.TrimSuffix(string(buf), "\n")
	return strings.TrimSuffix(line, "\r"), true, nil
}

func (lr *lineReader) count(what string) (int, error) {
	line, ok, err := lr.next()
	if errors.Is(err, errLineTooLong) {
		return 0, fmt.Errorf("%w: line %d: %s count: %w", ErrFatalInput, lr.line, what, err)
	}
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: missing %s count", ErrFatalInput, what)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: line %d: invalid %s count %q", ErrFatalInput, lr.line, what, line)
	}
	return n, nil
}

// readRules reads the rule header and up to n rule lines into a table.
func readRules(lr *lineReader, report *Report) (*policy.Table, error) {
	n, err := lr.count("rule")
	if err != nil {
		return nil, err
	}
	report.RulesExpected = n

	table := policy.NewTable(min(n, maxSizeHint))
	for i := 0; i < n; i++ {
		line, ok, err := lr.next()
		if errors.Is(err, errLineTooLong) {
			report.RulesRead++
			report.RulesSkipped++
			report.diagnose(fmt.Errorf("%w: line %d: %w", ErrMalformedRule, lr.line, err))
			continue
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			log.Warnf("Rule stream ended after %d of %d rules", i, n)
			break
		}
		report.RulesRead++

		if err := ingestLine(table, i, line); err != nil {
			report.RulesSkipped++
			report.diagnose(fmt.Errorf("%w: line %d: %q: %w", ErrMalformedRule, lr.line, strings.TrimSpace(line), err))
			continue
		}
		report.RulesAccepted++
	}

	table.Freeze()
	report.UniquePrefixes = table.UniqueLen()
	log.Infof("Inserted %d unique prefixes into trie (%d rules accepted, %d skipped)",
		report.UniquePrefixes, report.RulesAccepted, report.RulesSkipped)
	return table, nil
}

func ingestLine(table *policy.Table, index int, line string) error {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return fmt.Errorf("expected 2 fields, got %d", len(fields))
	}
	r, err := policy.ParseRule(index, fields[0], fields[1])
	if err != nil {
		return err
	}
	return table.Ingest(r)
}

// ReadRules reads the rule section of a stream into a frozen table: the
// rule count and the rule lines. Anything after them is not read.
func ReadRules(in io.Reader, opts Options) (*policy.Table, *Report, error) {
	opts = opts.normalize()
	report := &Report{maxDiagnostics: opts.MaxDiagnostics}

	table, err := readRules(newLineReader(in), report)
	if err != nil {
		return nil, report, err
	}
	return table, report, nil
}

// Process reads a full rule and query stream from in and writes one answer
// line per valid query to out, in query order. The returned error is
// non-nil only for fatal input, I/O failures and cancellation; per-line
// diagnostics are collected in the Report.
func Process(ctx context.Context, in io.Reader, out io.Writer, opts Options) (*Report, error) {
	opts = opts.normalize()
	report := &Report{maxDiagnostics: opts.MaxDiagnostics}
	lr := newLineReader(in)

	table, err := readRules(lr, report)
	if err != nil {
		return report, err
	}

	if opts.OnTable != nil {
		if err := opts.OnTable(table); err != nil {
			return report, fmt.Errorf("rule table hook failed: %w", err)
		}
	}

	engine, err := opts.NewEngine(table)
	if err != nil {
		return report, fmt.Errorf("failed to build engine: %w", err)
	}
	recorder, _ := engine.(MalformedRecorder)

	m, err := lr.count("query")
	if err != nil {
		return report, err
	}
	report.QueriesExpected = m

	w := bufio.NewWriterSize(out, 64*1024)
	chunk := make([]netip.Addr, 0, min(m, opts.ChunkSize, maxSizeHint))

	flushChunk := func() error {
		if len(chunk) == 0 {
			return nil
		}
		results, err := engine.ClassifyAll(ctx, chunk, opts.Workers)
		if err != nil {
			return err
		}
		if err := writeResults(w, results); err != nil {
			return err
		}
		report.QueriesAnswered += len(results)
		chunk = chunk[:0]
		return nil
	}

	for j := 0; j < m; j++ {
		line, ok, err := lr.next()
		if errors.Is(err, errLineTooLong) {
			report.QueriesRead++
			report.QueriesSkipped++
			report.diagnose(fmt.Errorf("%w: line %d: %w", ErrMalformedQuery, lr.line, err))
			if recorder != nil {
				recorder.RecordMalformed()
			}
			continue
		}
		if err != nil {
			return report, err
		}
		if !ok {
			log.Debugf("Query stream ended after %d of %d queries", j, m)
			break
		}
		report.QueriesRead++

		addr, err := policy.ParseAddr(strings.TrimSpace(line))
		if err != nil {
			report.QueriesSkipped++
			report.diagnose(fmt.Errorf("%w: line %d: %q: %w", ErrMalformedQuery, lr.line, strings.TrimSpace(line), err))
			if recorder != nil {
				recorder.RecordMalformed()
			}
			continue
		}

		chunk = append(chunk, addr)
		if len(chunk) == opts.ChunkSize {
			if err := flushChunk(); err != nil {
				return report, err
			}
		}
	}

	if err := flushChunk(); err != nil {
		return report, err
	}
	if err := w.Flush(); err != nil {
		return report, fmt.Errorf("failed to write results: %w", err)
	}

	log.Infof("Answered %d queries (%d skipped)", report.QueriesAnswered, report.QueriesSkipped)
	return report, nil
}

func writeResults(w *bufio.Writer, results []classifier.Result) error {
	for _, r := range results {
		if _, err := w.WriteString(r.String()); err != nil {
			return fmt.Errorf("failed to write results: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write results: %w", err)
		}
	}
	return nil
}
