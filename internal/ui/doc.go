// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI walks through one analysis at a time:
//  1. [PlaylistListView] : Browse and select a Spotify playlist
//  2. [AnalyzingView] : Spinner and phase progress while the pipeline runs
//  3. [ResultView] : Metrics and the top genres drawn as bars
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the analyzer, providing non-blocking status reporting during an analysis.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
