package copytree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveID(t *testing.T) {
	tests := []struct {
		name    string
		current uint32
		oldID   int
		newID   int
		want    int
	}{
		{name: "old matches, remapped", current: 1000, oldID: 1000, newID: 2000, want: 2000},
		{name: "old differs, unchanged", current: 999, oldID: 1000, newID: 2000, want: 999},
		{name: "wildcard old, remapped unconditionally", current: 999, oldID: UnchangedID, newID: 2000, want: 2000},
		{name: "wildcard new, never changed", current: 1000, oldID: 1000, newID: UnchangedID, want: 1000},
		{name: "both wildcard, identity", current: 1000, oldID: UnchangedID, newID: UnchangedID, want: 1000},
		{name: "root remapped to account", current: 0, oldID: 0, newID: 500, want: 500},
		{name: "non-root untouched by root remap", current: 1000, oldID: 0, newID: 500, want: 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveID(tt.current, tt.oldID, tt.newID))
		})
	}
}
