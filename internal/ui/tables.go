package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/Ghostlink/internal/directory"
	"github.com/BioHazard786/Ghostlink/internal/session"
	"github.com/BioHazard786/Ghostlink/internal/transfer"
	"github.com/BioHazard786/Ghostlink/internal/utils"
)

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Format.Header = text.FormatDefault
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

// RoomInfo renders a directory record.
func RoomInfo(room directory.Room, now time.Time) string {
	t := newTable(IconRoom + " Room " + room.Code)

	remaining := room.Remaining(now)
	status := SuccessStyle.Render("open")
	if remaining <= 0 {
		status = ErrorStyle.Render("expired")
	}

	t.AppendRows([]table.Row{
		{"Code", CodeStyle.Render(room.Code)},
		{"Admin", room.AdminName},
		{"Time limit", string(room.TimeLimit)},
		{"Created", room.CreatedAt.Local().Format(time.DateTime)},
		{"Expires", room.ExpiresAt().Local().Format(time.DateTime)},
		{"Remaining", session.FormatCountdown(remaining)},
		{"Status", status},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: text.Colors{text.Bold}},
	})
	return t.Render()
}

// FilesTable lists the files exchanged in a session, numbered from 1 for /save.
func FilesTable(files []transfer.CompletedFile, localID string) string {
	if len(files) == 0 {
		return MutedStyle.Render("No files yet.")
	}

	t := newTable(IconFile + " Files")
	t.AppendHeader(table.Row{"#", "Name", "Type", "Size", "From"})
	for i, f := range files {
		from := f.SenderName
		if f.SenderID == localID {
			from = "you"
		}
		t.AppendRow(table.Row{
			i + 1,
			utils.Truncate(f.Name, 40),
			shortMime(f.MimeType),
			utils.FormatSize(f.Size()),
			from,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	return t.Render()
}

// ParticipantsTable renders the roster with link state for the /peers command.
func ParticipantsTable(snap session.Snapshot) string {
	t := newTable(IconPeer + " Participants")
	t.AppendHeader(table.Row{"Name", "ID", "Role", "Link", "Channel"})
	for _, p := range snap.Participants {
		role := "member"
		if p.IsAdmin {
			role = "admin"
		}
		link, channel := "-", "-"
		if p.Self {
			link = "you"
		} else if l, ok := snap.Link(p.PeerID); ok {
			link = fmt.Sprintf("%s/%s", l.State, l.Connection)
			if l.HasChannel {
				channel = l.Channel.String()
			}
		}
		t.AppendRow(table.Row{p.DisplayName, utils.Truncate(p.PeerID, 8), role, link, channel})
	}
	return t.Render()
}

func shortMime(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	if m == "" {
		return "unknown"
	}
	return m
}
