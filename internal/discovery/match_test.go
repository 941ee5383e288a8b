package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genba/labjackgo/internal/device"
)

func TestParseMatch(t *testing.T) {
	tests := []struct {
		in   string
		want Match
	}{
		{"", Match{}},
		{"192.168.1.209", Match{By: MatchAddress, Address: "192.168.1.209"}},
		{"2", Match{By: MatchAny, Number: 2}},
		{"255", Match{By: MatchAny, Number: 255}},
		{"256", Match{By: MatchSerial, Number: 256}},
		{"320012345", Match{By: MatchSerial, Number: 320012345}},
		{"serial:7", Match{By: MatchSerial, Number: 7}},
		{"local:7", Match{By: MatchLocalID, Number: 7}},
		{"address:10.0.0.2", Match{By: MatchAddress, Address: "10.0.0.2"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMatch(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"abc", "1.2.3", "local:300", "color:red", "serial:x"} {
		_, err := ParseMatch(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestMatchMatches(t *testing.T) {
	id := device.Identity{Serial: 320012345, LocalID: 3, Address: "10.0.0.2"}

	assert.True(t, Match{}.Matches(id))
	assert.True(t, Match{By: MatchLocalID, Number: 3}.Matches(id))
	assert.False(t, Match{By: MatchLocalID, Number: 4}.Matches(id))
	assert.True(t, Match{By: MatchSerial, Number: 320012345}.Matches(id))
	assert.True(t, Match{By: MatchAddress, Address: "10.0.0.2"}.Matches(id))
	assert.False(t, Match{By: MatchAddress, Address: "10.0.0.3"}.Matches(id))
	assert.True(t, Match{By: MatchAny, Number: 3}.Matches(id))
	assert.True(t, Match{By: MatchAny, Number: 320012345}.Matches(id))
	assert.False(t, Match{By: MatchAny, Number: 9}.Matches(id))

	assert.Equal(t, "any", Match{}.String())
	assert.Equal(t, "serial=7", Match{By: MatchSerial, Number: 7}.String())
}
