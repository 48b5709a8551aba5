package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func isOpOrVoice(letter byte) bool {
	return letter == 'o' || letter == 'v'
}

func TestParseModeStringPrefixModesTakeArg(t *testing.T) {
	changes := parseModeString("+ov-b", []string{"alice", "bob", "*!*@host"}, isOpOrVoice)
	assert.Len(t, changes, 3)

	assert.Equal(t, ModeChange{Add: true, Letter: 'o', Arg: "alice", HasArg: true}, changes[0])
	assert.Equal(t, ModeChange{Add: true, Letter: 'v', Arg: "bob", HasArg: true}, changes[1])
	assert.Equal(t, ModeChange{Add: false, Letter: 'b', Arg: "*!*@host", HasArg: true}, changes[2])
}

func TestParseModeStringKeyAndLimit(t *testing.T) {
	changes := parseModeString("+kl", []string{"secret", "10"}, isOpOrVoice)
	assert.Len(t, changes, 2)
	assert.Equal(t, "secret", changes[0].Arg)
	assert.Equal(t, "10", changes[1].Arg)

	changes = parseModeString("-l", nil, isOpOrVoice)
	assert.Len(t, changes, 1)
	assert.False(t, changes[0].HasArg, "-l takes no argument on removal")
}

func TestParseModeStringArgumentlessLetters(t *testing.T) {
	changes := parseModeString("+nt", nil, isOpOrVoice)
	assert.Len(t, changes, 2)
	assert.False(t, changes[0].HasArg)
	assert.False(t, changes[1].HasArg)
}

func TestSelfModeGainedRegistered(t *testing.T) {
	assert.True(t, selfModeGainedRegistered("+r"))
	assert.True(t, selfModeGainedRegistered("+iwr"))
	assert.False(t, selfModeGainedRegistered("-r"))
	assert.False(t, selfModeGainedRegistered("+i"))
}

func TestSplitModeArgs(t *testing.T) {
	target, modes, args := splitModeArgs([]string{"#chan", "+ov", "alice", "bob"})
	assert.Equal(t, "#chan", target)
	assert.Equal(t, "+ov", modes)
	assert.Equal(t, []string{"alice", "bob"}, args)

	target, modes, args = splitModeArgs([]string{"mynick", "+i"})
	assert.Equal(t, "mynick", target)
	assert.Equal(t, "+i", modes)
	assert.Nil(t, args)
}
