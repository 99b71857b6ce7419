package ui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BioHazard786/Ghostlink/internal/files"
	"github.com/BioHazard786/Ghostlink/internal/session"
	"github.com/BioHazard786/Ghostlink/internal/transfer"
	"github.com/BioHazard786/Ghostlink/internal/utils"
)

const (
	sidebarWidth = 30
	chromeHeight = 6
)

// Controller is the part of a session the room UI drives.
type Controller interface {
	LocalID() string
	Events() <-chan session.Event
	Snapshot() session.Snapshot
	SubmitChat(ctx context.Context, text string) error
	SendFile(ctx context.Context, name, mimeType string, r io.Reader, size int64) error
	Kick(ctx context.Context, peerID string) error
	EndOrLeave(ctx context.Context) error
}

type RoomOptions struct {
	Code        string
	DisplayName string
	IsAdmin     bool
	MaxFileSize int64
	// DownloadDir is where /save writes when no directory is given.
	DownloadDir string
}

type eventMsg struct{ event session.Event }

type eventsClosedMsg struct{}

// resultMsg reports the outcome of a command that ran off the UI goroutine.
type resultMsg struct {
	level slog.Level
	text  string
	err   error
}

// RoomModel is the interactive room: transcript on the left, participants
// on the right, input at the bottom.
type RoomModel struct {
	ctx  context.Context
	ctl  Controller
	opts RoomOptions

	input      textinput.Model
	transcript viewport.Model

	lines        []string
	participants []session.Participant
	files        []transfer.CompletedFile
	sending      []session.FileSendProgress
	countdown    string
	terminal     *session.TerminalStateReached

	width, height int
	ready         bool
	quitting      bool
}

func NewRoomModel(ctx context.Context, ctl Controller, opts RoomOptions) *RoomModel {
	in := textinput.New()
	in.Placeholder = "Message, or /help"
	in.Prompt = "› "
	in.PromptStyle = SpinnerStyle
	in.CharLimit = 4096
	in.Focus()

	if opts.DownloadDir == "" {
		opts.DownloadDir = "."
	}

	m := &RoomModel{
		ctx:        ctx,
		ctl:        ctl,
		opts:       opts,
		input:      in,
		transcript: viewport.New(80, 20),
		countdown:  "--:--",
	}
	snap := ctl.Snapshot()
	m.participants = snap.Participants
	if snap.Remaining > 0 {
		m.countdown = session.FormatCountdown(snap.Remaining)
	}
	m.addLine(MutedStyle.Render(fmt.Sprintf("Joined room %s as %s. Type /help for commands.", opts.Code, opts.DisplayName)))
	return m
}

// RunRoom runs the room UI until the session ends or the user quits.
func RunRoom(ctx context.Context, ctl Controller, opts RoomOptions) error {
	_, err := tea.NewProgram(NewRoomModel(ctx, ctl, opts), tea.WithAltScreen()).Run()
	return err
}

func (m *RoomModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listen())
}

func (m *RoomModel) listen() tea.Cmd {
	events := m.ctl.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

func (m *RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.transcript.Width = max(20, msg.Width-sidebarWidth-4)
		m.transcript.Height = max(3, msg.Height-chromeHeight)
		m.input.Width = max(10, msg.Width-4)
		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.Reset()
			return m, m.submit(line)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.transcript, cmd = m.transcript.Update(msg)
			return m, cmd
		}

	case eventMsg:
		m.apply(msg.event)
		return m, m.listen()

	case eventsClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case resultMsg:
		switch {
		case msg.err != nil:
			m.addLine(FormatError(msg.err))
		case msg.text != "":
			m.addLine(noticeLine(msg.level, msg.text))
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *RoomModel) apply(ev session.Event) {
	switch ev := ev.(type) {
	case session.ParticipantsChanged:
		m.participants = ev.Participants
	case session.ChatAppended:
		m.addLine(chatLine(ev.Message))
	case session.FileCompleted:
		m.files = append(m.files, ev.File)
		n := len(m.files)
		if ev.Local {
			m.addLine(SuccessStyle.Render(IconComplete) + fmt.Sprintf(" Sent %s (%s)", ev.File.Name, utils.FormatSize(ev.File.Size())))
		} else {
			m.addLine(SuccessStyle.Render(IconReceive) + fmt.Sprintf(" %s shared %s (%s), /save %d to keep it",
				ev.File.SenderName, ev.File.Name, utils.FormatSize(ev.File.Size()), n))
		}
	case session.FileSendProgress:
		m.trackSend(ev)
	case session.CountdownTick:
		m.countdown = ev.Display
	case session.Notice:
		m.addLine(noticeLine(ev.Level, ev.Text))
	case session.TerminalStateReached:
		m.terminal = &ev
		m.input.Blur()
		m.addLine(BoldStyle.Render(fmt.Sprintf("Session over: %s.", ev.Reason)))
	}
}

func (m *RoomModel) submit(line string) tea.Cmd {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	cmd, isCommand, err := ParseCommand(line)
	if err != nil {
		m.addLine(FormatError(err))
		return nil
	}
	if !isCommand {
		if m.terminal != nil {
			return nil
		}
		text := ChatText(line)
		return m.run(func(ctx context.Context) resultMsg {
			return resultMsg{err: m.ctl.SubmitChat(ctx, text)}
		})
	}

	switch cmd.Name {
	case CmdHelp:
		for _, l := range HelpLines(m.opts.IsAdmin) {
			m.addLine(MutedStyle.Render(l))
		}
	case CmdFiles:
		m.addLine(FilesTable(m.files, m.ctl.LocalID()))
	case CmdPeers:
		m.addLine(ParticipantsTable(m.ctl.Snapshot()))
	case CmdSave:
		m.save(cmd.Index, cmd.Dir)
	case CmdSend:
		path := cmd.Arg
		return m.run(func(ctx context.Context) resultMsg { return m.sendFile(ctx, path) })
	case CmdKick:
		p, err := ResolvePeer(m.participants, cmd.Arg)
		if err != nil {
			m.addLine(FormatError(err))
			return nil
		}
		return m.run(func(ctx context.Context) resultMsg {
			return resultMsg{err: m.ctl.Kick(ctx, p.PeerID)}
		})
	case CmdEnd, CmdLeave:
		return m.run(func(ctx context.Context) resultMsg {
			return resultMsg{err: m.ctl.EndOrLeave(ctx)}
		})
	case CmdQuit:
		m.quitting = true
		return tea.Quit
	}
	return nil
}

func (m *RoomModel) run(fn func(context.Context) resultMsg) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg { return fn(ctx) }
}

func (m *RoomModel) sendFile(ctx context.Context, path string) resultMsg {
	info, err := files.Validate(path, m.opts.MaxFileSize)
	if err != nil {
		return resultMsg{err: err}
	}
	f, err := os.Open(info.Path)
	if err != nil {
		return resultMsg{err: fmt.Errorf("open %s: %w", info.Name, err)}
	}
	if err := m.ctl.SendFile(ctx, info.Name, info.Type, f, info.Size); err != nil {
		return resultMsg{err: err}
	}
	return resultMsg{level: slog.LevelInfo, text: fmt.Sprintf("Sending %s (%s)", info.Name, utils.FormatSize(info.Size))}
}

func (m *RoomModel) save(index int, dir string) {
	if index > len(m.files) {
		m.addLine(FormatError(fmt.Errorf("no file #%d, see /files", index)))
		return
	}
	if dir == "" {
		dir = m.opts.DownloadDir
	}
	f := m.files[index-1]
	if err := os.MkdirAll(dir, 0o755); err != nil {
		m.addLine(FormatError(err))
		return
	}
	path := utils.UniquePath(filepath.Join(dir, utils.SafeFilename(f.Name)))
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		m.addLine(FormatError(err))
		return
	}
	m.addLine(SuccessStyle.Render(IconSuccess) + " Saved " + path)
}

// trackSend keeps the sidebar list of outgoing files current.
func (m *RoomModel) trackSend(p session.FileSendProgress) {
	for i, cur := range m.sending {
		if cur.FileID != p.FileID {
			continue
		}
		if p.Done {
			m.sending = append(m.sending[:i], m.sending[i+1:]...)
		} else {
			m.sending[i] = p
		}
		return
	}
	if !p.Done {
		m.sending = append(m.sending, p)
	}
}

func (m *RoomModel) addLine(line string) {
	m.lines = append(m.lines, line)
	m.refresh()
}

func (m *RoomModel) refresh() {
	wrap := lipgloss.NewStyle().Width(m.transcript.Width)
	rendered := make([]string, len(m.lines))
	for i, l := range m.lines {
		rendered[i] = wrap.Render(l)
	}
	m.transcript.SetContent(strings.Join(rendered, "\n"))
	m.transcript.GotoBottom()
}

func (m *RoomModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading room..."
	}

	role := ""
	if m.opts.IsAdmin {
		role = " " + AdminBadgeStyle.Render(IconAdmin+" admin")
	}
	header := HeaderStyle.Render("👻 Ghostlink") + "  " +
		CodeStyle.Render(m.opts.Code) + role + "  " +
		StatusStyle.Render(IconTime+" "+m.countdown) + "  " +
		MutedStyle.Render(fmt.Sprintf("%d online", len(m.participants)))

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		PaneStyle.Height(m.transcript.Height).Render(m.transcript.View()),
		PaneStyle.Width(sidebarWidth-2).Height(m.transcript.Height).Render(m.sidebar()),
	)

	footer := m.input.View()
	if m.terminal != nil {
		footer = MutedStyle.Render("Session over. Press ctrl+c or type /quit to exit.")
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer,
		FooterStyle.Render("enter send • pgup/pgdn scroll • /help commands"))
}

func (m *RoomModel) sidebar() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Participants"))
	b.WriteString("\n")
	for _, p := range m.participants {
		name := utils.Truncate(p.DisplayName, sidebarWidth-10)
		style := PeerNameStyle
		if p.Self {
			style = SelfNameStyle
			name += " (you)"
		}
		line := style.Render(name)
		if p.IsAdmin {
			line = AdminBadgeStyle.Render(IconAdmin) + " " + line
		} else {
			line = IconPeer + " " + line
		}
		b.WriteString(line + "\n")
	}
	if len(m.sending) > 0 {
		b.WriteString("\n" + TitleStyle.Render("Sending") + "\n")
		for _, p := range m.sending {
			b.WriteString(sendLine(p) + "\n")
		}
	}
	return b.String()
}

func sendLine(p session.FileSendProgress) string {
	pct := 100
	if p.Total > 0 {
		pct = int(p.Sent * 100 / p.Total)
	}
	return fmt.Sprintf("%s %s %d%%", IconSend, utils.Truncate(p.Name, sidebarWidth-12), pct)
}

func chatLine(msg session.ChatMessage) string {
	name := PeerNameStyle.Render(msg.SenderName)
	if msg.Local {
		name = SelfNameStyle.Render(msg.SenderName)
	}
	return TimestampStyle.Render(msg.At.Local().Format("15:04")) + " " + name + ": " + msg.Text
}

func noticeLine(level slog.Level, text string) string {
	switch {
	case level >= slog.LevelError:
		return ErrorStyle.Render(IconError + " " + text)
	case level >= slog.LevelWarn:
		return WarningStyle.Render(IconWarning + " " + text)
	}
	return MutedStyle.Render(text)
}
