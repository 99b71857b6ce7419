package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/BioHazard786/Ghostlink/internal/session"
)

// CommandName identifies a slash command typed into the room input.
type CommandName string

const (
	CmdHelp  CommandName = "help"
	CmdSend  CommandName = "send"
	CmdKick  CommandName = "kick"
	CmdFiles CommandName = "files"
	CmdSave  CommandName = "save"
	CmdPeers CommandName = "peers"
	CmdEnd   CommandName = "end"
	CmdLeave CommandName = "leave"
	CmdQuit  CommandName = "quit"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
	ErrAmbiguousPeer  = errors.New("more than one participant matches")
	ErrNoSuchPeer     = errors.New("no participant matches")
)

// Command is a parsed slash command.
type Command struct {
	Name CommandName
	Arg  string
	// Index and Dir are set for /save.
	Index int
	Dir   string
}

var usage = map[CommandName]string{
	CmdHelp:  "/help",
	CmdSend:  "/send <path>",
	CmdKick:  "/kick <name|id>",
	CmdFiles: "/files",
	CmdSave:  "/save <n> [dir]",
	CmdPeers: "/peers",
	CmdEnd:   "/end",
	CmdLeave: "/leave",
	CmdQuit:  "/quit",
}

var aliases = map[string]CommandName{
	"h":    CmdHelp,
	"?":    CmdHelp,
	"f":    CmdFiles,
	"s":    CmdSend,
	"q":    CmdQuit,
	"exit": CmdQuit,
}

// ParseCommand parses a line starting with "/". ok is false for plain chat.
// A doubled slash sends the rest as chat.
func ParseCommand(line string) (cmd Command, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") || strings.HasPrefix(line, "//") {
		return Command{}, false, nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	n := CommandName(strings.ToLower(name))
	if a, found := aliases[string(n)]; found {
		n = a
	}
	if _, known := usage[n]; !known {
		return Command{}, true, fmt.Errorf("%w /%s (try /help)", ErrUnknownCommand, name)
	}

	cmd = Command{Name: n, Arg: rest}
	switch n {
	case CmdSend, CmdKick:
		if rest == "" {
			return Command{}, true, usageError(n)
		}
		cmd.Arg = unquote(rest)
	case CmdSave:
		idx, dir, _ := strings.Cut(rest, " ")
		i, convErr := strconv.Atoi(idx)
		if convErr != nil || i < 1 {
			return Command{}, true, usageError(n)
		}
		cmd.Index = i
		cmd.Dir = unquote(strings.TrimSpace(dir))
	}
	return cmd, true, nil
}

// ChatText returns the text to send for a non-command line.
func ChatText(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "//") {
		return line[1:]
	}
	return line
}

// HelpLines lists the commands available to an admin or a member.
func HelpLines(admin bool) []string {
	lines := []string{
		usage[CmdSend] + "  share a file with everyone",
		usage[CmdFiles] + "  list shared files",
		usage[CmdSave] + "  write a shared file to disk",
		usage[CmdPeers] + "  show participants and link state",
	}
	if admin {
		lines = append(lines,
			usage[CmdKick]+"  remove a participant",
			usage[CmdEnd]+"  end the room for everyone",
		)
	} else {
		lines = append(lines, usage[CmdLeave]+"  leave the room")
	}
	return append(lines, usage[CmdQuit]+"  leave and exit")
}

// ResolvePeer finds a remote participant by id, id prefix or display name.
func ResolvePeer(participants []session.Participant, query string) (session.Participant, error) {
	var matches []session.Participant
	for _, p := range participants {
		if p.Self {
			continue
		}
		if p.PeerID == query {
			return p, nil
		}
		if strings.EqualFold(p.DisplayName, query) || strings.HasPrefix(p.PeerID, query) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return session.Participant{}, fmt.Errorf("%w %q", ErrNoSuchPeer, query)
	case 1:
		return matches[0], nil
	}
	return session.Participant{}, fmt.Errorf("%w %q, use the id", ErrAmbiguousPeer, query)
}

func usageError(n CommandName) error {
	return fmt.Errorf("%w: %s", ErrUsage, usage[n])
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
