package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows model until the user quits or the session navigates away, and
// returns the completion target if one was reached. sink is attached to the
// program before it starts so no published state is missed after Init.
func Run(ctx context.Context, model Model, sink *Sink, opts ...tea.ProgramOption) (string, error) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	program := tea.NewProgram(model, opts...)
	sink.Attach(program.Send)
	defer sink.Attach(nil)

	final, err := program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return "", err
	}
	if m, ok := final.(Model); ok {
		return m.Target(), nil
	}
	return "", nil
}
