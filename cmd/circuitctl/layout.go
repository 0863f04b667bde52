package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/WessleyAI/wessley-circuit/engine/circuit"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var (
	onStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	offStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	hdrStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellPad  = lipgloss.NewStyle().Padding(0, 1)
)

// evaluate loads path and builds a circuit from it.
func evaluate(path string, maxCycles int) (*circuit.Layout, *circuit.Circuit, error) {
	l, err := circuit.ReadLayoutFile(path)
	if err != nil {
		return nil, nil, err
	}
	c := circuit.New(circuit.WithMaxCycles(maxCycles))
	l.Apply(c)
	return l, c, nil
}

func newEvalCmd() *cobra.Command {
	var asJSON bool
	var maxCycles int

	cmd := &cobra.Command{
		Use:   "eval <layout.yaml>",
		Short: "Print the energized state of every component in a layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := evaluate(args[0], maxCycles)
			if err != nil {
				return err
			}
			snap := c.Snapshot()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			return renderPower(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full snapshot as JSON")
	cmd.Flags().IntVar(&maxCycles, "max-cycles", 0, "stop enumerating after this many cycles (0 = unbounded)")
	return cmd
}

func renderPower(w io.Writer, snap circuit.Snapshot) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "KIND", "LABEL", "SWITCH", "POWER").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return hdrStyle
			}
			if col == 4 && snap.Components[row].Powered {
				return onStyle.Padding(0, 1)
			}
			if col == 4 {
				return offStyle.Padding(0, 1)
			}
			return cellPad
		})
	powered := 0
	for _, comp := range snap.Components {
		sw := "-"
		if comp.Kind == circuit.KindSwitch {
			sw = "open"
			if comp.Closed {
				sw = "closed"
			}
		}
		state := "off"
		if comp.Powered {
			state = "ON"
			powered++
		}
		t.Row(string(comp.ID), comp.Kind.String(), comp.Label, sw, state)
	}
	_, err := fmt.Fprintf(w, "%s\n%d of %d components energized, %d cycles\n",
		t.Render(), powered, len(snap.Components), len(snap.Cycles))
	return err
}

func newCyclesCmd() *cobra.Command {
	var maxCycles int

	cmd := &cobra.Command{
		Use:   "cycles <layout.yaml>",
		Short: "List the simple cycles of a layout and whether each carries power",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := evaluate(args[0], maxCycles)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			cycles := c.Cycles()
			if len(cycles) == 0 {
				fmt.Fprintln(out, "no cycles")
				return nil
			}
			for i, cy := range cycles {
				mark := offStyle.Render("dead")
				if c.Qualifies(cy) {
					mark = onStyle.Render("live")
				}
				ids := make([]string, len(cy))
				for j, id := range cy {
					ids[j] = string(id)
				}
				fmt.Fprintf(out, "%3d  %s  %s\n", i+1, mark, strings.Join(ids, " - "))
			}
			if c.CyclesTruncated() {
				fmt.Fprintf(out, "(stopped after %d cycles)\n", len(cycles))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxCycles, "max-cycles", 0, "stop enumerating after this many cycles (0 = unbounded)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <layout.yaml>...",
		Short: "Check layouts for unknown kinds, duplicate ids and malformed connections",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				l, err := circuit.ReadLayoutFile(path)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %v\n", err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%d components, %d connections)\n",
					path, len(l.Components), len(l.Connections))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d layouts invalid", failed, len(args))
			}
			return nil
		},
	}
}
