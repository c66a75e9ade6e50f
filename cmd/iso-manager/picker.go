package main

import (
	"strings"

	"github.com/gdamore/tcell"
	"github.com/rivo/tview"

	"github.com/open-edge-platform/iso-manager/internal/staleness"
)

const pickerTitle = " Update candidates  [space] toggle  [a] all  [c] confirm  [q] cancel "

// candidatePicker holds the selection state behind the interactive list.
type candidatePicker struct {
	names    []string
	details  []string
	selected []bool
}

func newCandidatePicker(report staleness.Report) *candidatePicker {
	p := &candidatePicker{
		names:    report.Candidates,
		details:  make([]string, len(report.Candidates)),
		selected: make([]bool, len(report.Candidates)),
	}
	for i, name := range report.Candidates {
		var files []string
		for _, rec := range report.RecordsFor([]string{name}) {
			files = append(files, rec.Filename)
		}
		p.details[i] = "replaces " + strings.Join(files, ", ")
	}
	return p
}

func (p *candidatePicker) toggle(i int) {
	if i >= 0 && i < len(p.selected) {
		p.selected[i] = !p.selected[i]
	}
}

// toggleAll selects everything, or clears the selection when everything is
// already selected.
func (p *candidatePicker) toggleAll() {
	all := true
	for _, s := range p.selected {
		all = all && s
	}
	for i := range p.selected {
		p.selected[i] = !all
	}
}

func (p *candidatePicker) label(i int) string {
	if p.selected[i] {
		return "[x] " + p.names[i]
	}
	return "[ ] " + p.names[i]
}

func (p *candidatePicker) chosen() []string {
	var out []string
	for i, s := range p.selected {
		if s {
			out = append(out, p.names[i])
		}
	}
	return out
}

// handleKey applies one key press. It reports whether the picker is done
// and whether the selection was confirmed.
func (p *candidatePicker) handleKey(event *tcell.EventKey, current int) (done, confirmed bool) {
	switch event.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true, false
	case tcell.KeyRune:
		switch event.Rune() {
		case ' ':
			p.toggle(current)
		case 'a':
			p.toggleAll()
		case 'c':
			return true, true
		case 'q':
			return true, false
		}
	}
	return false, false
}

// pickCandidates shows the candidates of report in a terminal list and
// returns the confirmed selection. Cancelling returns nothing.
func pickCandidates(report staleness.Report) ([]string, error) {
	p := newCandidatePicker(report)
	app := tview.NewApplication()
	list := tview.NewList()
	confirmed := false

	refresh := func() {
		for i := range p.names {
			list.SetItemText(i, p.label(i), p.details[i])
		}
	}
	for i := range p.names {
		list.AddItem(p.label(i), p.details[i], 0, nil)
	}
	list.SetSelectedFunc(func(i int, _, _ string, _ rune) {
		p.toggle(i)
		refresh()
	})
	list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() != tcell.KeyRune && event.Key() != tcell.KeyEscape && event.Key() != tcell.KeyCtrlC {
			return event
		}
		done, ok := p.handleKey(event, list.GetCurrentItem())
		if done {
			confirmed = ok
			app.Stop()
			return nil
		}
		refresh()
		return nil
	})
	list.SetBorder(true)
	list.SetTitle(pickerTitle)

	if err := app.SetRoot(list, true).Run(); err != nil {
		return nil, err
	}
	if !confirmed {
		return nil, nil
	}
	return p.chosen(), nil
}
