// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package batch

import (
	"bytes"
	"context"
	"errors"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ebpf-microsegment/firstmatch/pkg/classifier"
	"github.com/ebpf-microsegment/firstmatch/pkg/policy"
)

func run(t *testing.T, input string, opts Options) (string, *Report, error) {
	t.Helper()
	var out bytes.Buffer
	report, err := Process(context.Background(), strings.NewReader(input), &out, opts)
	return out.String(), report, err
}

func lines(s ...string) string {
	return strings.Join(s, "\n") + "\n"
}

// TestProcess tests end-to-end stream processing
func TestProcess(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "first match over longest match",
			input:    lines("2", "10.0.0.0/8 1", "10.1.0.0/16 0", "1", "10.1.2.3"),
			expected: lines("match rule 0, permit"),
		},
		{
			name:     "no match",
			input:    lines("1", "192.168.0.0/16 1", "1", "8.8.8.8"),
			expected: lines("match none"),
		},
		{
			name:     "catch-all",
			input:    lines("2", "10.0.0.0/8 1", "0.0.0.0/0 0", "2", "10.0.0.1", "1.2.3.4"),
			expected: lines("match rule 0, permit", "match rule 1, reject"),
		},
		{
			name:     "duplicate prefixes",
			input:    lines("2", "10.0.0.0/8 1", "10.0.0.0/8 0", "1", "10.5.5.5"),
			expected: lines("match rule 0, permit"),
		},
		{
			name:     "host bits masked",
			input:    lines("1", "10.1.2.3/8 0", "1", "10.200.0.1"),
			expected: lines("match rule 0, reject"),
		},
		{
			name:     "bare address rule",
			input:    lines("1", "10.1.2.3 1", "2", "10.1.2.3", "10.1.2.4"),
			expected: lines("match rule 0, permit", "match none"),
		},
		{
			name:     "zero rules",
			input:    lines("0", "1", "1.1.1.1"),
			expected: lines("match none"),
		},
		{
			name:     "zero queries",
			input:    lines("1", "10.0.0.0/8 1", "0"),
			expected: "",
		},
		{
			name:     "padded header and fields",
			input:    lines(" 1 ", "  10.0.0.0/8\t1  ", "1\r", " 10.0.0.9 "),
			expected: lines("match rule 0, permit"),
		},
		{
			name:     "query stream ends early",
			input:    lines("1", "10.0.0.0/8 1", "5", "10.0.0.1"),
			expected: lines("match rule 0, permit"),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, report, err := run(t, tc.input, DefaultOptions())
			require.NoError(t, err)
			assert.NoError(t, report.Err())
			assert.Equal(t, tc.expected, out)
		})
	}
}

// TestProcess_MalformedTolerance tests that bad lines change nothing but diagnostics
func TestProcess_MalformedTolerance(t *testing.T) {
	clean := lines(
		"5",
		"10.0.0.0/8 0",
		"BAD",
		"10.1.0.0/16 1",
		"10.2.0.0/16 7",
		"0.0.0.0/0 1",
		"4",
		"10.1.1.1",
		"not-an-ip",
		"10.2.2.2",
		"192.0.2.1",
	)

	out, report, err := run(t, clean, DefaultOptions())
	require.NoError(t, err)

	// indices of valid rules are not shifted by the skipped lines
	assert.Equal(t, lines("match rule 0, reject", "match rule 0, reject", "match rule 4, permit"), out)

	assert.Equal(t, 5, report.RulesRead)
	assert.Equal(t, 3, report.RulesAccepted)
	assert.Equal(t, 2, report.RulesSkipped)
	assert.Equal(t, 4, report.QueriesRead)
	assert.Equal(t, 3, report.QueriesAnswered)
	assert.Equal(t, 1, report.QueriesSkipped)

	require.Error(t, report.Err())
	assert.Equal(t, 3, report.Diagnostics.Len())
	assert.ErrorIs(t, report.Diagnostics.Errors[0], ErrMalformedRule)
	assert.ErrorIs(t, report.Diagnostics.Errors[1], ErrMalformedRule)
	assert.ErrorIs(t, report.Diagnostics.Errors[1], policy.ErrInvalidLabel)
	assert.ErrorIs(t, report.Diagnostics.Errors[2], ErrMalformedQuery)
	assert.ErrorIs(t, report.Diagnostics.Errors[2], policy.ErrInvalidAddress)
}

// TestProcess_MalformedEqualsRemoved tests the stream with malformed lines replaced by absent rules
func TestProcess_MalformedEqualsRemoved(t *testing.T) {
	withBad := lines("4", "10.0.0.0/8 1 extra", "10.0.0.0/16 0", "999.0.0.0/8 1", "0.0.0.0/0 1",
		"3", "10.0.0.1", "10.9.0.1", "::1")
	// same rules at the same indices; the skipped indices carry a rule no query hits
	withoutBad := lines("4", "255.255.255.254/32 1", "10.0.0.0/16 0", "255.255.255.255/32 1", "0.0.0.0/0 1",
		"2", "10.0.0.1", "10.9.0.1")

	a, _, err := run(t, withBad, DefaultOptions())
	require.NoError(t, err)
	b, _, err := run(t, withoutBad, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, b, a)
	assert.Equal(t, lines("match rule 1, reject", "match rule 3, permit"), a)
}

// TestProcess_FatalInput tests header failures
func TestProcess_FatalInput(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{name: "empty input", input: ""},
		{name: "non-numeric rule count", input: lines("abc")},
		{name: "negative rule count", input: lines("-1")},
		{name: "non-numeric query count", input: lines("1", "10.0.0.0/8 1", "many", "10.0.0.1")},
		{name: "missing query count", input: lines("1", "10.0.0.0/8 1")},
		{name: "rule stream ends before query count", input: lines("3", "10.0.0.0/8 1")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, _, err := run(t, tc.input, DefaultOptions())
			assert.ErrorIs(t, err, ErrFatalInput)
			assert.Empty(t, out)
		})
	}
}

// TestProcess_OverlongLines tests that a line over the size limit is skipped like any malformed line
func TestProcess_OverlongLines(t *testing.T) {
	long := strings.Repeat("x", 2<<20)

	testCases := []struct {
		name     string
		input    string
		expected string
		rules    int
		queries  int
	}{
		{
			name:     "rule line",
			input:    lines("2", long+" 1", "10.0.0.0/8 1", "1", "10.1.1.1"),
			expected: lines("match rule 1, permit"),
			rules:    1,
		},
		{
			name:     "query line",
			input:    lines("1", "10.0.0.0/8 0", "3", "10.0.0.1", long, "10.0.0.2"),
			expected: lines("match rule 0, reject", "match rule 0, reject"),
			queries:  1,
		},
		{
			name:     "last line without newline",
			input:    lines("1", "10.0.0.0/8 0", "2", "10.0.0.1") + long,
			expected: lines("match rule 0, reject"),
			queries:  1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, report, err := run(t, tc.input, DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, tc.expected, out)
			assert.Equal(t, tc.rules, report.RulesSkipped)
			assert.Equal(t, tc.queries, report.QueriesSkipped)

			require.Error(t, report.Err())
			if tc.rules > 0 {
				assert.ErrorIs(t, report.Diagnostics.Errors[0], ErrMalformedRule)
			} else {
				assert.ErrorIs(t, report.Diagnostics.Errors[0], ErrMalformedQuery)
			}
			assert.ErrorIs(t, report.Diagnostics.Errors[0], errLineTooLong)
		})
	}

	_, _, err := run(t, lines(strings.Repeat("1", 2<<20)), DefaultOptions())
	assert.ErrorIs(t, err, ErrFatalInput)
}

// TestProcess_RuleCountTooLarge tests that lines after the last rule are read as rules
func TestProcess_RuleCountTooLarge(t *testing.T) {
	// "1" and "10.0.0.1" are consumed as malformed rule lines, then the stream ends
	_, report, err := run(t, lines("3", "10.0.0.0/8 1", "1", "10.0.0.1"), DefaultOptions())
	assert.ErrorIs(t, err, ErrFatalInput)
	assert.Equal(t, 3, report.RulesRead)
	assert.Equal(t, 1, report.RulesAccepted)
}

// TestProcess_Chunking tests that small chunks keep answer order
func TestProcess_Chunking(t *testing.T) {
	input := []string{"2", "10.0.0.0/8 1", "11.0.0.0/8 0", "7"}
	var want []string
	for i := range 7 {
		if i%2 == 0 {
			input = append(input, "10.0.0.1")
			want = append(want, "match rule 0, permit")
		} else {
			input = append(input, "11.0.0.1")
			want = append(want, "match rule 1, reject")
		}
	}

	opts := DefaultOptions()
	opts.ChunkSize = 2
	opts.Workers = 3

	out, report, err := run(t, lines(input...), opts)
	require.NoError(t, err)
	assert.Equal(t, lines(want...), out)
	assert.Equal(t, 7, report.QueriesAnswered)
}

// TestProcess_MaxDiagnostics tests the diagnostic cap
func TestProcess_MaxDiagnostics(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxDiagnostics = 2

	_, report, err := run(t, lines("4", "a", "b", "c", "d", "0"), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Diagnostics.Len())
	assert.Equal(t, 2, report.DroppedDiagnostics)
	assert.Equal(t, 4, report.RulesSkipped)
}

// TestProcess_OnTable tests the table hook
func TestProcess_OnTable(t *testing.T) {
	var seen *policy.Table
	opts := DefaultOptions()
	opts.OnTable = func(table *policy.Table) error {
		seen = table
		return nil
	}

	_, _, err := run(t, lines("2", "10.0.0.0/8 1", "10.0.0.0/8 0", "0"), opts)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.True(t, seen.Frozen())
	assert.Equal(t, 2, seen.Len())
	assert.Equal(t, 1, seen.UniqueLen())

	opts.OnTable = func(*policy.Table) error { return errors.New("disk full") }
	_, _, err = run(t, lines("0", "0"), opts)
	assert.ErrorContains(t, err, "disk full")
}

// MockEngine is a mock implementation of Engine
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) ClassifyAll(ctx context.Context, addrs []netip.Addr, workers int) ([]classifier.Result, error) {
	args := m.Called(ctx, addrs, workers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]classifier.Result), args.Error(1)
}

func (m *MockEngine) RecordMalformed() {
	m.Called()
}

// TestProcess_Engine tests a custom engine and malformed query recording
func TestProcess_Engine(t *testing.T) {
	// Setup
	engine := new(MockEngine)
	engine.On("ClassifyAll", mock.Anything, []netip.Addr{netip.MustParseAddr("1.2.3.4")}, 2).
		Return([]classifier.Result{{Index: 9, Matched: true, Action: policy.Permit}}, nil)
	engine.On("RecordMalformed").Return()

	opts := DefaultOptions()
	opts.Workers = 2
	opts.NewEngine = func(*policy.Table) (Engine, error) { return engine, nil }

	// Execute
	out, _, err := run(t, lines("0", "2", "x", "1.2.3.4"), opts)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, lines("match rule 9, permit"), out)
	engine.AssertExpectations(t)
	engine.AssertNumberOfCalls(t, "RecordMalformed", 1)
}

// TestProcess_EngineError tests that a failing engine aborts the run
func TestProcess_EngineError(t *testing.T) {
	engine := new(MockEngine)
	engine.On("ClassifyAll", mock.Anything, mock.Anything, mock.Anything).Return(nil, context.Canceled)

	opts := DefaultOptions()
	opts.NewEngine = func(*policy.Table) (Engine, error) { return engine, nil }

	_, _, err := run(t, lines("0", "1", "1.2.3.4"), opts)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestReadRules tests reading the rule section only
func TestReadRules(t *testing.T) {
	table, report, err := ReadRules(strings.NewReader(lines("3", "10.0.0.0/8 1", "x y z", "10.0.0.0/8 0", "ignored")), DefaultOptions())
	require.NoError(t, err)

	assert.True(t, table.Frozen())
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, 1, report.UniquePrefixes)
	assert.Equal(t, 1, report.RulesSkipped)

	_, _, err = ReadRules(strings.NewReader("x\n"), DefaultOptions())
	assert.ErrorIs(t, err, ErrFatalInput)
}
