// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestParseCIDR tests network parsing
func TestParseCIDR(t *testing.T) {
	testCases := []struct {
		name        string
		input       string
		expect      string
		expectError bool
	}{
		{name: "valid /8", input: "10.0.0.0/8", expect: "10.0.0.0/8"},
		{name: "valid /24", input: "192.168.1.0/24", expect: "192.168.1.0/24"},
		{name: "host bits masked", input: "10.1.2.3/8", expect: "10.0.0.0/8"},
		{name: "bare address is /32", input: "192.168.1.100", expect: "192.168.1.100/32"},
		{name: "catch-all", input: "0.0.0.0/0", expect: "0.0.0.0/0"},
		{name: "host bits masked on /0", input: "1.2.3.4/0", expect: "0.0.0.0/0"},
		{name: "invalid IP", input: "999.999.999.999/8", expectError: true},
		{name: "missing length", input: "192.168.1.1/", expectError: true},
		{name: "length too large", input: "192.168.1.1/33", expectError: true},
		{name: "IPv6", input: "2001:db8::/32", expectError: true},
		{name: "garbage", input: "hello", expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pfx, err := ParseCIDR(tc.input)

			if tc.expectError {
				assert.ErrorIs(t, err, ErrInvalidCIDR)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.expect, pfx.String())
		})
	}
}

// TestParseAddr tests query address parsing
func TestParseAddr(t *testing.T) {
	testCases := []struct {
		name        string
		input       string
		expectError bool
	}{
		{name: "valid", input: "10.1.2.3"},
		{name: "zero", input: "0.0.0.0"},
		{name: "broadcast", input: "255.255.255.255"},
		{name: "with prefix", input: "10.0.0.0/8", expectError: true},
		{name: "out of range octet", input: "10.0.0.256", expectError: true},
		{name: "IPv6", input: "::1", expectError: true},
		{name: "empty", input: "", expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := ParseAddr(tc.input)

			if tc.expectError {
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.input, addr.String())
		})
	}
}

// TestParseLabel tests label parsing
func TestParseLabel(t *testing.T) {
	testCases := []struct {
		name        string
		input       string
		expected    Label
		expectError bool
	}{
		{name: "permit", input: "1", expected: LabelPermit},
		{name: "reject", input: "0", expected: LabelReject},
		{name: "two", input: "2", expectError: true},
		{name: "negative", input: "-1", expectError: true},
		{name: "word", input: "allow", expectError: true},
		{name: "empty", input: "", expectError: true},
		{name: "padded", input: "01", expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ParseLabel(tc.input)

			if tc.expectError {
				assert.ErrorIs(t, err, ErrInvalidLabel)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

// TestParseRule tests parsing of both rule fields
func TestParseRule(t *testing.T) {
	r, err := ParseRule(7, "10.5.0.0/16", "0")
	assert.NoError(t, err)
	assert.Equal(t, 7, r.Index)
	assert.Equal(t, "10.5.0.0/16", r.Prefix.String())
	assert.Equal(t, LabelReject, r.Label)
	assert.Equal(t, "rule 7: 10.5.0.0/16 0", r.String())

	_, err = ParseRule(0, "10.5.0.0/16", "x")
	assert.ErrorIs(t, err, ErrInvalidLabel)

	_, err = ParseRule(0, "10.5.0/16", "1")
	assert.ErrorIs(t, err, ErrInvalidCIDR)
}

// TestResolve tests label to action mapping
func TestResolve(t *testing.T) {
	assert.Equal(t, Permit, Resolve(LabelPermit))
	assert.Equal(t, Reject, Resolve(LabelReject))

	assert.Equal(t, NoMatch, ActionOf(LabelPermit, false))
	assert.Equal(t, Permit, ActionOf(LabelPermit, true))
	assert.Equal(t, Reject, ActionOf(LabelReject, true))

	assert.Equal(t, "permit", Permit.String())
	assert.Equal(t, "reject", Reject.String())
	assert.Equal(t, "no match", NoMatch.String())
}
