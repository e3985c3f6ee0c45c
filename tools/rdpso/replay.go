package rdpso

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"rdpso/simulator/internal/networking"
	"rdpso/simulator/internal/replay"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "List and inspect replay bundles",
	}
	cmd.AddCommand(newReplayListCmd(), newReplayInspectCmd())
	return cmd
}

func newReplayListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list DIR",
		Short: "Catalogue the replay headers found under DIR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := replay.List(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, entries)
			}
			for _, entry := range entries {
				printEntry(out, entry)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit JSON instead of human-readable output")
	return cmd
}

func printEntry(out io.Writer, entry replay.Entry) {
	h := entry.Header
	fmt.Fprintf(out, "%s (schema %d)\n", entry.ManifestPath, h.SchemaVersion)
	fmt.Fprintf(out, "  run: %s  seed: %d\n", h.RunID, h.Seed)
	if h.Goal != "" {
		fmt.Fprintf(out, "  goal: %s %s  swarm: %d\n", h.Strategy, h.Goal, h.SwarmSize)
	}
	fmt.Fprintf(out, "  iterations: %d  frames: %d\n", h.Iterations, h.Frames)
	if len(h.TerrainParams) > 0 {
		keys := make([]string, 0, len(h.TerrainParams))
		for key := range h.TerrainParams {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		fmt.Fprintf(out, "  terrain:\n")
		for _, key := range keys {
			fmt.Fprintf(out, "    %s: %.3f\n", key, h.TerrainParams[key])
		}
	}
	fmt.Fprintf(out, "  header: %s\n", entry.HeaderPath)
}

// inspection is the JSON rendering of a loaded bundle.
type inspection struct {
	Dir      string               `json:"dir"`
	Manifest replay.Manifest      `json:"manifest"`
	Header   replay.Header        `json:"header"`
	Events   []replay.EventRecord `json:"events"`
	Frames   int                  `json:"frames"`
	Frame    *networking.Snapshot `json:"frame,omitempty"`
}

func newReplayInspectCmd() *cobra.Command {
	var frameIndex int
	cmd := &cobra.Command{
		Use:   "inspect PATH",
		Short: "Load a bundle directory or manifest and print its contents as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := replay.Open(args[0])
			if err != nil {
				return err
			}
			result := inspection{
				Dir:      bundle.Dir,
				Manifest: bundle.Manifest,
				Header:   bundle.Header,
				Events:   bundle.Events,
				Frames:   len(bundle.Frames),
			}
			//1.- Decode one frame back into a snapshot when asked.
			if frameIndex >= 0 {
				if frameIndex >= len(bundle.Frames) {
					return fmt.Errorf("frame %d out of range (bundle has %d)", frameIndex, len(bundle.Frames))
				}
				msg, err := networking.DecodeBinary(bundle.Frames[frameIndex].Payload)
				if err != nil {
					return err
				}
				snapshot, err := networking.DecodeSnapshot(msg)
				if err != nil {
					return err
				}
				result.Frame = &snapshot
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().IntVar(&frameIndex, "frame", -1, "decode and include the frame at this index")
	return cmd
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
