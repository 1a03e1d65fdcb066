// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package kstat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/antimetal/kstat/pkg/kstat"
)

func strp(s string) *string { return &s }
func i32p(i int32) *int32   { return &i }

func TestFilter_Match(t *testing.T) {
	tests := []struct {
		name   string
		filter *kstat.Filter
		want   bool
	}{
		{"nil filter", nil, true},
		{"empty filter", &kstat.Filter{}, true},
		{"module match", &kstat.Filter{Module: strp("zones")}, true},
		{"module mismatch", &kstat.Filter{Module: strp("cpu")}, false},
		{"module is not a prefix match", &kstat.Filter{Module: strp("zone")}, false},
		{"instance match", &kstat.Filter{Instance: i32p(3)}, true},
		{"instance mismatch", &kstat.Filter{Instance: i32p(0)}, false},
		{"name match", &kstat.Filter{Name: strp("zone_caps")}, true},
		{"name mismatch", &kstat.Filter{Name: strp("zone_cap")}, false},
		{"class match", &kstat.Filter{Class: strp("zone_caps")}, true},
		{"class mismatch", &kstat.Filter{Class: strp("misc")}, false},
		{
			"all fields match",
			&kstat.Filter{Module: strp("zones"), Instance: i32p(3), Name: strp("zone_caps"), Class: strp("zone_caps")},
			true,
		},
		{
			"one mismatching field rejects",
			&kstat.Filter{Module: strp("zones"), Instance: i32p(3), Name: strp("zone_caps"), Class: strp("disk")},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Match("zones", 3, "zone_caps", "zone_caps")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_MatchEmptyStrings(t *testing.T) {
	// A set-but-empty string field only matches records whose field is
	// actually empty; it is not a wildcard.
	filter := &kstat.Filter{Module: strp("")}
	assert.False(t, filter.Match("zones", 0, "zone_caps", "zone_caps"))
	assert.True(t, filter.Match("", 0, "zone_caps", "zone_caps"))
}
