package tui

import (
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// RunWithWork creates a bubbletea program, launches workFn in a goroutine,
// and blocks until the program exits. A workFn error is shown in place of
// the table and returned.
func RunWithWork(out io.Writer, model ProgressModel, workFn func(send func(tea.Msg)) error) (ProgressModel, error) {
	p := tea.NewProgram(model, tea.WithOutput(out), tea.WithInput(nil))

	go func() {
		// Let bubbletea start its event loop and render the initial frame.
		time.Sleep(50 * time.Millisecond)

		if err := workFn(p.Send); err != nil {
			p.Send(ErrorMsg{Err: err})
			return
		}
		p.Send(WorkDoneMsg{})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return model, err
	}
	m, ok := finalModel.(ProgressModel)
	if !ok {
		return model, nil
	}
	return m, m.Err()
}
