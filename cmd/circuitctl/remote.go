package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/WessleyAI/wessley-circuit/engine/bridge"
	"github.com/WessleyAI/wessley-circuit/engine/circuit"
	"github.com/WessleyAI/wessley-circuit/engine/events"
	"github.com/WessleyAI/wessley-circuit/engine/graph"
	"github.com/WessleyAI/wessley-circuit/engine/runtime"
	"github.com/WessleyAI/wessley-circuit/pkg/natsutil"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cobra"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type natsFlags struct {
	url    string
	prefix string
}

func (f *natsFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "nats-url", envOr("NATS_URL", nats.DefaultURL), "NATS server URL")
	cmd.Flags().StringVar(&f.prefix, "prefix", envOr("NATS_SUBJECT_PREFIX", "circuit"), "subject prefix used by circuitd")
}

func (f *natsFlags) connect() (*nats.Conn, error) {
	nc, err := nats.Connect(f.url, nats.Name("circuitctl"))
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", f.url, err)
	}
	return nc, nil
}

func newSendCmd() *cobra.Command {
	var nf natsFlags
	var cmdFlags runtime.Command
	var closed bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send <op> [id] [peer]",
		Short: "Send one command to a running circuitd over NATS",
		Long: `Ops: register, unregister, connect, disconnect, disconnect_all, set_switch,
reset, powered. The reply reports whether the command's target is energized afterwards.`,
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cmdFlags
			c.Op = runtime.Op(args[0])
			if cmd.Flags().Changed("closed") {
				c.Closed = &closed
			}
			if len(args) > 1 {
				c.ID = circuit.ID(args[1])
			}
			if len(args) > 2 {
				c.Peer = circuit.ID(args[2])
			}
			if err := c.Validate(); err != nil {
				return err
			}

			nc, err := nf.connect()
			if err != nil {
				return err
			}
			defer nc.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			reply, err := natsutil.Request[runtime.Command, bridge.Reply](ctx, nc, bridge.CommandSubject(nf.prefix), c)
			if err != nil {
				return fmt.Errorf("request: %w", err)
			}
			if !reply.OK {
				return fmt.Errorf("circuitd rejected command: %s", reply.Error)
			}
			state := "off"
			if reply.Powered {
				state = "ON"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", c.Op, c.ID, state)
			return nil
		},
	}
	nf.register(cmd)
	cmd.Flags().StringVar(&cmdFlags.Kind, "kind", "", "component kind for register")
	cmd.Flags().StringVar(&cmdFlags.Label, "label", "", "display label for register")
	cmd.Flags().BoolVar(&closed, "closed", false, "switch state for register and set_switch; left unset, register keeps the stored state")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "reply deadline")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var nf natsFlags
	var count int

	cmd := &cobra.Command{
		Use:   "watch [id]",
		Short: "Print power events published by circuitd",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nc, err := nf.connect()
			if err != nil {
				return err
			}
			defer nc.Close()

			subject := nf.prefix + ".power.>"
			if len(args) == 1 {
				subject = bridge.PowerSubject(nf.prefix, args[0])
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			evs := make(chan events.PowerEvent, 64)
			sub, err := natsutil.Subscribe(nc, subject, func(_ context.Context, ev events.PowerEvent) {
				select {
				case evs <- ev:
				case <-ctx.Done():
				}
			}, nil)
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()
			if err := nc.Flush(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for seen := 0; count <= 0 || seen < count; seen++ {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-evs:
					state := offStyle.Render("off")
					switch {
					case ev.Removed:
						state = offStyle.Render("removed")
					case ev.Powered:
						state = onStyle.Render("ON")
					}
					fmt.Fprintf(out, "%s  %-8s %s %s\n", ev.At.Format(time.RFC3339), ev.Circuit, ev.ID, state)
				}
			}
			return nil
		},
	}
	nf.register(cmd)
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many events (0 = run until interrupted)")
	return cmd
}

func newExportCmd() *cobra.Command {
	var url, user, pass, name string
	var maxCycles int

	cmd := &cobra.Command{
		Use:   "export <layout.yaml>",
		Short: "Evaluate a layout and store the result in Neo4j",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				return fmt.Errorf("--neo4j-url is required")
			}
			driver, err := neo4j.NewDriverWithContext(url, neo4j.BasicAuth(user, pass, ""))
			if err != nil {
				return fmt.Errorf("neo4j driver: %w", err)
			}
			defer driver.Close(context.Background())
			return exportLayout(cmd, graph.New(driver), name, args[0], maxCycles)
		},
	}
	cmd.Flags().StringVar(&url, "neo4j-url", os.Getenv("NEO4J_URL"), "Neo4j URL")
	cmd.Flags().StringVar(&user, "neo4j-user", envOr("NEO4J_USER", "neo4j"), "Neo4j user")
	cmd.Flags().StringVar(&pass, "neo4j-pass", envOr("NEO4J_PASS", "password"), "Neo4j password")
	cmd.Flags().StringVar(&name, "circuit", "", "circuit name (defaults to the layout name)")
	cmd.Flags().IntVar(&maxCycles, "max-cycles", 0, "stop enumerating after this many cycles (0 = unbounded)")
	return cmd
}

func exportLayout(cmd *cobra.Command, store graph.Saver, name, path string, maxCycles int) error {
	l, c, err := evaluate(path, maxCycles)
	if err != nil {
		return err
	}
	if name == "" {
		name = l.Name
	}
	if name == "" {
		return fmt.Errorf("layout has no name; pass --circuit")
	}
	snap := c.Snapshot()
	if err := store.SaveSnapshot(cmd.Context(), name, snap); err != nil {
		return fmt.Errorf("export %s: %w", name, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %s: %d components, %d connections, %d cycles\n",
		name, len(snap.Components), len(snap.Connections), len(snap.Cycles))
	return nil
}
