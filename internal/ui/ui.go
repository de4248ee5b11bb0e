package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/genrescope/internal/analysis"
	"github.com/desertthunder/genrescope/internal/formatter"
	"github.com/desertthunder/genrescope/internal/models"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlaylistListView ViewState = iota
	AnalyzingView
	ResultView
)

// topGenres is how many genres the result view draws.
const topGenres = 15

// PlaylistLister lists the signed-in user's playlists.
type PlaylistLister interface {
	GetPlaylists(ctx context.Context) ([]models.Playlist, error)
}

// Analyzer runs one playlist analysis, reporting progress on the channel.
type Analyzer interface {
	Analyze(ctx context.Context, playlistID string, progress chan<- analysis.ProgressUpdate) (*models.Analysis, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	lister       PlaylistLister
	analyzer     Analyzer
	width        int
	height       int
	playlistList list.Model
	playlists    []models.Playlist
	selected     *models.Playlist
	spinner      spinner.Model
	progressChan chan analysis.ProgressUpdate
	doneChan     chan Msg
	progress     analysis.ProgressUpdate
	result       *models.Analysis
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, lister PlaylistLister, analyzer Analyzer) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.ok

	return &Model{
		ctx:          ctx,
		view:         PlaylistListView,
		lister:       lister,
		analyzer:     analyzer,
		playlistList: list.New(nil, list.NewDefaultDelegate(), 0, 0),
		spinner:      s,
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// Init initializes the TUI by fetching playlists from Spotify.
func (m *Model) Init() tea.Cmd {
	return m.fetchPlaylists()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.playlistList.SetSize(max(msg.Width-4, 0), max(msg.Height-8, 0))
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case PlaylistListView:
			return m.handlePlaylistListKeys(msg)
		case AnalyzingView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != AnalyzingView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateList(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgPlaylistsFetched:
		data := msg.data.(playlistsFetched)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.playlists = data.playlists
		items := make([]list.Item, len(data.playlists))
		for i, pl := range data.playlists {
			items[i] = playlistItem{playlist: pl}
		}
		m.playlistList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.playlistList.Title = "Spotify Playlists"
		m.playlistList.SetSize(max(m.width-4, 0), max(m.height-8, 0))
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(analysis.ProgressUpdate)
		return m, waitForProgress(m.progressChan, m.doneChan)

	case MsgAnalysisComplete:
		data := msg.data.(analysisComplete)
		m.result = data.result
		m.err = data.err
		m.view = ResultView
		m.progressChan = nil
		m.doneChan = nil
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view == PlaylistListView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case PlaylistListView:
		return m.renderPlaylistList()
	case AnalyzingView:
		return m.renderAnalyzing()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

// Err returns the last error shown by the TUI.
func (m *Model) Err() error {
	return m.err
}

func (m *Model) handlePlaylistListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.playlistList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.playlistList, cmd = m.playlistList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if pl, ok := m.playlistList.SelectedItem().(playlistItem); ok {
			m.selected = &pl.playlist
			m.view = AnalyzingView
			m.progress = analysis.ProgressUpdate{}
			return m, tea.Batch(m.spinner.Tick, m.startAnalysis(pl.playlist.ID))
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart), key.Matches(msg, m.keys.back):
		m.view = PlaylistListView
		m.selected = nil
		m.result = nil
		m.err = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.view != PlaylistListView {
		return m, nil
	}
	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) fetchPlaylists() tea.Cmd {
	return func() tea.Msg {
		playlists, err := m.lister.GetPlaylists(m.ctx)
		return playlistsFetchedMsg(playlists, err)
	}
}

// startAnalysis runs the analyzer in the background. The completion message is queued before the
// progress channel closes, so waitForProgress always finds it.
func (m *Model) startAnalysis(playlistID string) tea.Cmd {
	progress := make(chan analysis.ProgressUpdate, 50)
	done := make(chan Msg, 1)
	m.progressChan = progress
	m.doneChan = done

	ctx := m.ctx
	go func() {
		result, err := m.analyzer.Analyze(ctx, playlistID, progress)
		done <- analysisCompleteMsg(result, err)
		close(progress)
	}()

	return waitForProgress(progress, done)
}

func waitForProgress(progress <-chan analysis.ProgressUpdate, done <-chan Msg) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-progress
		if !ok {
			return <-done
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderPlaylistList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.playlistList.View(), helpView)
}

func (m *Model) playlistName() string {
	if m.selected == nil {
		return ""
	}
	return m.selected.Name
}

func (m *Model) renderAnalyzing() string {
	title := styles.title.Render(fmt.Sprintf("Analyzing '%s'", m.playlistName()))

	var phase string
	switch m.progress.Phase {
	case analysis.FetchTracks:
		phase = "Fetching tracks"
	case analysis.ResolveArtists:
		phase = "Resolving artist genres"
	case analysis.AggregateGenres:
		phase = "Counting genres"
	default:
		phase = "Working"
	}

	line := fmt.Sprintf("%s %s", m.spinner.View(), phase)
	if m.progress.Total > 0 {
		line = fmt.Sprintf("%s\n%s %d/%d", line, bar(float64(m.progress.Step)/float64(m.progress.Total), barWidth), m.progress.Step, m.progress.Total)
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})
	return fmt.Sprintf("%s\n\n%s\n%s\n\n%s", title, line, styles.help.Render(m.progress.Message), helpView)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.restart, m.keys.quit})

	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("Analysis failed: %v", m.err)), helpView)
	}
	if m.result == nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render("No result available"), helpView)
	}

	title := styles.ok.Render(fmt.Sprintf("✓ Genre profile of '%s'", m.playlistName()))
	summary := formatter.Summary(m.result.Metrics)

	var b strings.Builder
	top := m.result.GenreCounts.Top(topGenres)
	if len(top) == 0 {
		b.WriteString(styles.warn.Render("No genres found for this playlist's artists."))
		b.WriteString("\n")
	}

	highest := 1
	if len(top) > 0 {
		highest = top[0].Count
	}
	for _, gc := range top {
		fmt.Fprintf(&b, "%s %s %3d  %s\n",
			styles.label.Render(truncate(gc.Genre, labelWidth-1)),
			bar(float64(gc.Count)/float64(highest), barWidth),
			gc.Count,
			formatter.FormatShare(m.result.Share(gc.Count)),
		)
	}
	if hidden := len(m.result.GenreCounts) - len(top); hidden > 0 {
		fmt.Fprintf(&b, "%s\n", styles.help.Render(fmt.Sprintf("… and %d more", hidden)))
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n%s", title, summary, b.String(), helpView)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
