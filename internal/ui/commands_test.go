package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Ghostlink/internal/session"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		command bool
		err     error
	}{
		{line: "hello there", command: false},
		{line: "//not a command", command: false},
		{line: "/help", want: Command{Name: CmdHelp}, command: true},
		{line: "/?", want: Command{Name: CmdHelp}, command: true},
		{line: "  /FILES ", want: Command{Name: CmdFiles}, command: true},
		{line: "/send ./report.pdf", want: Command{Name: CmdSend, Arg: "./report.pdf"}, command: true},
		{line: `/send "my file.txt"`, want: Command{Name: CmdSend, Arg: "my file.txt"}, command: true},
		{line: "/kick bob", want: Command{Name: CmdKick, Arg: "bob"}, command: true},
		{line: "/save 2", want: Command{Name: CmdSave, Arg: "2", Index: 2}, command: true},
		{line: "/save 1 ~/Downloads", want: Command{Name: CmdSave, Arg: "1 ~/Downloads", Index: 1, Dir: "~/Downloads"}, command: true},
		{line: "/exit", want: Command{Name: CmdQuit}, command: true},
		{line: "/send", command: true, err: ErrUsage},
		{line: "/kick   ", command: true, err: ErrUsage},
		{line: "/save zero", command: true, err: ErrUsage},
		{line: "/save 0", command: true, err: ErrUsage},
		{line: "/dance", command: true, err: ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, ok, err := ParseCommand(tt.line)
			assert.Equal(t, tt.command, ok)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestChatText(t *testing.T) {
	assert.Equal(t, "hi", ChatText("  hi "))
	assert.Equal(t, "/shrug", ChatText("//shrug"))
}

func TestHelpLines(t *testing.T) {
	admin := HelpLines(true)
	member := HelpLines(false)
	assert.Contains(t, admin, usage[CmdKick]+"  remove a participant")
	assert.NotContains(t, member, usage[CmdKick]+"  remove a participant")
	assert.Contains(t, member, usage[CmdLeave]+"  leave the room")
}

func TestResolvePeer(t *testing.T) {
	people := []session.Participant{
		{PeerID: "aaaa-1111", DisplayName: "me", Self: true},
		{PeerID: "bbbb-2222", DisplayName: "Bob"},
		{PeerID: "bbcc-3333", DisplayName: "Carol"},
		{PeerID: "dddd-4444", DisplayName: "bob"},
	}

	p, err := ResolvePeer(people, "bbcc-3333")
	require.NoError(t, err)
	assert.Equal(t, "Carol", p.DisplayName)

	p, err = ResolvePeer(people, "carol")
	require.NoError(t, err)
	assert.Equal(t, "bbcc-3333", p.PeerID)

	p, err = ResolvePeer(people, "dd")
	require.NoError(t, err)
	assert.Equal(t, "dddd-4444", p.PeerID)

	_, err = ResolvePeer(people, "bob")
	assert.ErrorIs(t, err, ErrAmbiguousPeer)

	_, err = ResolvePeer(people, "bb")
	assert.ErrorIs(t, err, ErrAmbiguousPeer)

	_, err = ResolvePeer(people, "me")
	assert.ErrorIs(t, err, ErrNoSuchPeer)
}
