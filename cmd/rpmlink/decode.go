package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/srg/rpmlink/internal/protocol"
	"github.com/srg/rpmlink/internal/registry"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <device> <hex>",
	Short: "Decode a response frame",
	Long: `Decode a notification frame the way a live session would, without a radio.

<device> is a catalog id, an advertised name or a category (pulse-oximeter,
bp-monitor, glucose-meter, weight-scale). The frame may be split across
several arguments.`,
	Example: `  rpmlink decode pulse-oximeter 51 49 61 00 00 4B A3 00
  rpmlink decode "TNG SCALE" 51710201...`,
	Args: cobra.MinimumNArgs(2),
	RunE: runDecode,
}

var decodeFormat string

func init() {
	decodeCmd.Flags().StringVarP(&decodeFormat, "format", "f", "text", "Output format (text, json)")
}

type decodeJSON struct {
	Device      string               `json:"device"`
	Category    protocol.Category    `json:"category"`
	Opcode      string               `json:"opcode"`
	Recognized  bool                 `json:"recognized"`
	Short       bool                 `json:"short"`
	Directive   string               `json:"directive"`
	FrameError  string               `json:"frame_error,omitempty"`
	Measurement protocol.Measurement `json:"measurement"`
}

func runDecode(cmd *cobra.Command, args []string) error {
	if err := validateChoice("format", decodeFormat, "text", "json"); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "", cfg)
	if err != nil {
		return err
	}

	profile, err := registry.New(cfg.RegistryOptions(logger)).Lookup(args[0])
	if err != nil {
		return err
	}
	frame, err := protocol.ParseHex(strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	res := profile.Decode(cfg.Decoder(), frame)
	res.Partial.Device = profile.Name
	res.Partial.Category = profile.Category
	frameErr := protocol.Verify(frame)

	out := cmd.OutOrStdout()
	if decodeFormat == "json" {
		j := decodeJSON{
			Device:      profile.Name,
			Category:    profile.Category,
			Opcode:      res.Opcode.String(),
			Recognized:  res.Recognized,
			Short:       res.Short,
			Directive:   res.Directive.String(),
			Measurement: res.Partial,
		}
		if frameErr != nil {
			j.FrameError = frameErr.Error()
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(j)
	}

	fmt.Fprintf(out, "Device:    %s\n", profile)
	fmt.Fprintf(out, "Frame:     %s\n", protocol.Frame(frame))
	if frameErr != nil {
		fmt.Fprintf(out, "Warning:   %v\n", frameErr)
	}
	fmt.Fprintf(out, "Opcode:    %s\n", res.Opcode)
	fmt.Fprintf(out, "Directive: %s\n", res.Directive)
	switch {
	case res.Short:
		fmt.Fprintln(out, "Frame is too short for this device; a live session would re-read.")
	case !res.Recognized:
		fmt.Fprintln(out, "Opcode not recognized; a live session would ignore this frame.")
	}
	for _, line := range res.Partial.Summary() {
		fmt.Fprintf(out, "  %s\n", line)
	}
	return nil
}
