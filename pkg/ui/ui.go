// Package ui abstracts the interactive prompts (overwrite confirmation,
// wipe confirmation, artifact selection) behind injectable providers so
// the lifecycle controller is testable without a terminal.
package ui

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"

	"github.com/arthur-debert/backhaul/pkg/errors"
)

// Confirmer asks a yes/no question.
type Confirmer interface {
	Confirm(message string, def bool) (bool, error)
}

// Selector asks the user to pick one of the options, returning its index.
type Selector interface {
	Select(message string, options []string) (int, error)
}

// Console prompts on the terminal via pterm.
type Console struct{}

// NewConsole returns the terminal-backed prompt provider.
func NewConsole() *Console {
	return &Console{}
}

func requireTerminal() error {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return errors.New(errors.ErrInternal, "interactive confirmation required but stdin is not a terminal")
	}
	return nil
}

// Confirm implements Confirmer.
func (c *Console) Confirm(message string, def bool) (bool, error) {
	if err := requireTerminal(); err != nil {
		return false, err
	}
	return pterm.DefaultInteractiveConfirm.
		WithDefaultValue(def).
		Show(message)
}

// Select implements Selector.
func (c *Console) Select(message string, options []string) (int, error) {
	if err := requireTerminal(); err != nil {
		return 0, err
	}
	choice, err := pterm.DefaultInteractiveSelect.
		WithOptions(options).
		Show(message)
	if err != nil {
		return 0, err
	}
	for i, opt := range options {
		if opt == choice {
			return i, nil
		}
	}
	return 0, errors.Newf(errors.ErrInternal, "selection %q is not among the options", choice)
}

// Scripted answers prompts from canned responses; used in tests and by
// --yes style automation.
type Scripted struct {
	// Answers are consumed in order by Confirm; when exhausted,
	// Default is returned.
	Answers []bool
	Default bool
	// Choice is returned by every Select call.
	Choice int

	Confirmations []string
	Selections    []string
}

// Confirm implements Confirmer.
func (s *Scripted) Confirm(message string, def bool) (bool, error) {
	s.Confirmations = append(s.Confirmations, message)
	if len(s.Answers) == 0 {
		return s.Default, nil
	}
	answer := s.Answers[0]
	s.Answers = s.Answers[1:]
	return answer, nil
}

// Select implements Selector.
func (s *Scripted) Select(message string, options []string) (int, error) {
	s.Selections = append(s.Selections, message)
	if s.Choice < 0 || s.Choice >= len(options) {
		return 0, errors.Newf(errors.ErrInternal, "scripted choice %d out of range", s.Choice)
	}
	return s.Choice, nil
}
