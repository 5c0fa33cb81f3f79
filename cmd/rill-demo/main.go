// Command rill-demo is a runnable Host process: it boots an Engine over
// an in-process NativeContext, feeds it a hand-written Guest bundle, and
// paints Receiver.Render()'s output with Bubbletea and Lipgloss. The Host
// UI framework that actually walks an Element tree is out of scope for
// this module; this command exists only to show the shell end to end.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/GoAskAway/rill-sub003/pkg/engine"
	"github.com/GoAskAway/rill-sub003/pkg/proto"
	"github.com/GoAskAway/rill-sub003/pkg/receiver"
	"github.com/GoAskAway/rill-sub003/pkg/registry"
)

// counterBundle is the Guest side of the demo: a Go closure standing in
// for the bundle source a real sandbox would eval. It owns the counter
// state, creates the initial tree, and registers the two callbacks the
// rendered root exposes as onIncrement/onDecrement props.
func counterBundle(ctx *engine.NativeContext) (any, error) {
	sendOpRaw, _ := ctx.GetGlobal("__sendOperation")
	sendOp := sendOpRaw.(func(proto.Op))
	registerRaw, _ := ctx.GetGlobal("__registerCallback")
	register := registerRaw.(func(registry.Fn) registry.FnId)

	count := 0
	label := func() string { return fmt.Sprintf("Count: %d", count) }

	incId := register(func(args []any) any {
		count++
		sendOp(proto.Text{Id: 2, Text: label()})
		return nil
	})
	decId := register(func(args []any) any {
		if count > 0 {
			count--
		}
		sendOp(proto.Text{Id: 2, Text: label()})
		return nil
	})

	sendOp(proto.Create{Id: 1, Type: "View", Props: map[string]any{
		"onIncrement": incId,
		"onDecrement": decId,
	}})
	sendOp(proto.Create{Id: 2, Type: proto.TextType, Props: map[string]any{"text": label()}})
	sendOp(proto.Append{ParentId: proto.RootId, ChildId: 1})
	sendOp(proto.Append{ParentId: 1, ChildId: 2})

	return nil, nil
}

func noopHelper(ctx *engine.NativeContext) (any, error) { return nil, nil }

type model struct {
	eng *engine.Engine
	err error
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.String() {
	case "ctrl+c", "q":
		_ = m.eng.Destroy()
		return m, tea.Quit
	case "up", "k", "+":
		m.invoke("onIncrement")
	case "down", "j", "-":
		m.invoke("onDecrement")
	}
	return m, nil
}

// invoke reads the callback FnId off the rendered root's props and
// invokes it directly on the Guest callback registry, standing in for
// the CALL_FUNCTION round trip a real Host would send across the wire.
func (m model) invoke(propName string) {
	root, ok := m.eng.Receiver.Render().(receiver.Element)
	if !ok || len(root.Children) == 0 {
		return
	}
	fnId, ok := root.Props[propName].(registry.FnId)
	if !ok {
		return
	}
	m.eng.Bridge.GuestCallbacks.Invoke(fnId, nil)
}

func (m model) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	counterStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).
		Padding(1, 2).Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63"))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)

	text := "Count: 0"
	if root, ok := m.eng.Receiver.Render().(receiver.Element); ok && len(root.Children) > 0 {
		if t, ok := root.Children[0].Props["text"].(string); ok {
			text = t
		}
	}

	title := titleStyle.Render("rill-demo")
	counter := counterStyle.Render(text)
	help := helpStyle.Render("↑/k/+ increment • ↓/j/- decrement • q quit")

	return fmt.Sprintf("%s\n\n%s\n\n%s\n", title, counter, help)
}

func main() {
	nc := engine.NewNativeContext()
	eng := engine.New(nc)

	nc.RegisterProgram("helper", noopHelper)
	nc.RegisterProgram("bundle", counterBundle)

	if err := eng.LoadBundle(context.Background(), "helper", "bundle"); err != nil {
		fmt.Fprintf(os.Stderr, "rill-demo: load bundle: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(model{eng: eng})
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "rill-demo: %v\n", err)
		os.Exit(1)
	}
}
