package main

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/xeptore/tdl/tidal/types"
)

func printSummary(w io.Writer, tracks []types.FiledTrack) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Artist", "Album", "Title", "Path"})
	for _, track := range tracks {
		t.AppendRow(table.Row{
			track.Metadata.TrackNumberString(),
			track.Metadata.JoinedArtists(),
			track.Metadata.Album,
			track.Metadata.Title,
			track.Path,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight}, //nolint:exhaustruct
	})
	t.AppendFooter(table.Row{"", "", "", "Total", len(tracks)})
	t.Render()
}
