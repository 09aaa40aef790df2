package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Auto        key.Binding
	Connect     key.Binding
	Print       key.Binding
	CheckScan   key.Binding
	Reset       key.Binding
	Validation  key.Binding
	PrintMode   key.Binding
	Model       key.Binding
	Help        key.Binding
	Quit        key.Binding
	Confirm     key.Binding
	CancelInput key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Auto:        key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "auto on/off")),
		Connect:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "connect")),
		Print:       key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "print")),
		CheckScan:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "check scan")),
		Reset:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
		Validation:  key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "validation mode")),
		PrintMode:   key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "print mode")),
		Model:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "select model")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Confirm:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply")),
		CancelInput: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Auto, k.Connect, k.Print, k.Reset, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Auto, k.Connect, k.Print, k.CheckScan},
		{k.Reset, k.Validation, k.PrintMode, k.Model},
		{k.Help, k.Quit},
	}
}

type pickerKeys struct {
	Confirm key.Binding
	Cancel  key.Binding
}

func (p pickerKeys) ShortHelp() []key.Binding {
	return []key.Binding{p.Confirm, p.Cancel}
}

func (p pickerKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{p.ShortHelp()}
}
