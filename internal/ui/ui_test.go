package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRendersParamsInOrder(t *testing.T) {
	out := NewHeader("data", "dictctl data 7", map[string]string{
		"Server": "http://127.0.0.1:8080",
		"Key":    "temp",
	}).SetWidth(80).Render()

	assert.Contains(t, out, "DATA")
	assert.Contains(t, out, "dictctl data 7")
	assert.Less(t, strings.Index(out, "Key:"), strings.Index(out, "Server:"))
}

func TestResultRender(t *testing.T) {
	out := NewSuccessResult("Dictionary created", map[string]string{
		"Serial": "7",
		"Label":  "Kitchen",
	}).SetWidth(80).Render()
	assert.Contains(t, out, "SUCCESS")
	assert.Contains(t, out, "Kitchen")
	assert.Less(t, strings.Index(out, "Label:"), strings.Index(out, "Serial:"))

	out = NewFailureResult("Request failed", errors.New("connection refused"), []string{"Is the server running?"}).Render()
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, "Is the server running?")

	out = NewWarningResult("No dictionaries", map[string]string{"Server": "x"}).Render()
	assert.Contains(t, out, "WARNING")
	assert.Contains(t, out, "Server:")
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := RenderTable([]string{"SN", "LABEL", "GEN"}, [][]string{{"1", "Kitchen"}, {"2", "Garage", "4"}})
	assert.Contains(t, out, "SN")
	assert.Contains(t, out, "Kitchen")
	assert.Contains(t, out, "Garage")
}

func TestPrinterQuiet(t *testing.T) {
	var out, errOut bytes.Buffer
	p := &Printer{Out: &out, Err: &errOut, Quiet: true, Width: 80}

	p.Header("list", "dictctl list", nil)
	p.Success("done", nil)
	assert.Empty(t, out.String())

	p.Raw("{}")
	assert.Equal(t, "{}\n", out.String())

	p.Failure("Request failed", errors.New("boom"))
	assert.Equal(t, "Request failed: boom\n", errOut.String())
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, ConfirmRemoveDictionary(strings.NewReader("7\n"), &out, 7, "Kitchen"))
	assert.Contains(t, out.String(), "REMOVE DICTIONARY")

	out.Reset()
	assert.False(t, ConfirmRemoveDictionary(strings.NewReader("yes\n"), &out, 7, "Kitchen"))
	assert.Contains(t, out.String(), "Operation cancelled")

	assert.False(t, Confirm(strings.NewReader(""), &out, "x", nil, "ok"))
	assert.True(t, Confirm(strings.NewReader("ok"), &out, "x", nil, "ok"))
}

func TestWatchModel(t *testing.T) {
	calls := 0
	m := NewWatchModel("data", time.Second, func(ctx context.Context) (Snapshot, error) {
		calls++
		return Snapshot{
			Columns: []string{"ID", "KEY", "VALUE"},
			Rows:    [][]string{{"1", "temp", "21.5"}, {"2", "temp"}},
		}, nil
	})
	require.NotNil(t, m.Init())
	assert.Contains(t, m.View(), "waiting for data")

	msg := m.refresh()()
	updated, cmd := m.Update(msg)
	m = updated.(WatchModel)
	require.NotNil(t, cmd, "a snapshot schedules the next tick")
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, m.Rows())
	view := m.View()
	assert.Contains(t, view, "21.5")
	assert.Contains(t, view, "updated")

	updated, cmd = m.Update(tickMsg(time.Now()))
	m = updated.(WatchModel)
	require.NotNil(t, cmd)
	assert.True(t, m.loading)

	// A refresh key while a fetch is in flight is ignored.
	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	m = updated.(WatchModel)
	assert.Nil(t, cmd)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	_, cmd = updated.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestWatchModelError(t *testing.T) {
	m := NewWatchModel("data", time.Second, func(ctx context.Context) (Snapshot, error) {
		return Snapshot{}, errors.New("server unreachable")
	})
	updated, _ := m.Update(m.refresh()())
	m = updated.(WatchModel)
	assert.Contains(t, m.View(), "server unreachable")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	m = updated.(WatchModel)
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "paused")

	updated, cmd = m.Update(tickMsg(time.Now()))
	assert.Nil(t, cmd, "paused dashboards do not poll")
	_ = updated
}
