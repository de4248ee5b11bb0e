package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/genrescope/internal/analysis"
	"github.com/desertthunder/genrescope/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgPlaylistsFetched MsgKind = iota
	MsgProgressUpdate
	MsgAnalysisComplete
)

type playlistsFetched struct {
	playlists []models.Playlist
	err       error
}

type analysisComplete struct {
	result *models.Analysis
	err    error
}

// playlistsFetchedMsg is the constructor for [MsgPlaylistsFetched]
func playlistsFetchedMsg(playlists []models.Playlist, err error) Msg {
	return Msg{kind: MsgPlaylistsFetched, data: playlistsFetched{playlists, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update analysis.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// analysisCompleteMsg is the constructor for [MsgAnalysisComplete]
func analysisCompleteMsg(result *models.Analysis, err error) Msg {
	return Msg{kind: MsgAnalysisComplete, data: analysisComplete{result, err}}
}
