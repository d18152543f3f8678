package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/pktt/internal/config"
	"firestige.xyz/pktt/internal/core"
	"firestige.xyz/pktt/internal/filter"
	"firestige.xyz/pktt/internal/output"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without decoding anything.

The file is loaded with the same rules as --config, including PKTT_*
environment overrides. The effective configuration is printed as YAML.

Examples:
  pktt validate -f config.yml`,
	// Validation must not depend on the config it validates.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(validateFile, cmd.OutOrStdout())
	},
}

var validateFile string

func init() {
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "",
		"configuration file to validate (required)")
	_ = validateCmd.MarkFlagRequired("file")
}

func runValidate(path string, w io.Writer) error {
	loaded, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(w, "INVALID: %v\n", err)
		return err
	}

	out, err := loaded.Marshal()
	if err != nil {
		return fmt.Errorf("failed to format config: %w", err)
	}

	pairs := [][2]string{
		{"log", loaded.Log.Level + "/" + loaded.Log.Format},
		{"strict_gss", fmt.Sprint(loaded.Decoder.StrictGSS)},
		{"metrics", metricsSummary(loaded.Metrics)},
		{"kafka", kafkaSummary(loaded.Sink.Kafka)},
	}
	if expr := loaded.Source.Filter; expr != "" {
		f, err := filter.New(expr)
		if err != nil {
			return err
		}
		prog, err := f.Assemble(core.LinkTypeEthernet)
		if err != nil {
			return err
		}
		pairs = append(pairs, [2]string{"filter", fmt.Sprintf("%q (%d BPF instructions)", expr, len(prog))})
	}

	fmt.Fprintf(w, "VALID: %s\n", path)
	output.SimpleTable(w, pairs)
	fmt.Fprintln(w, "---")
	_, err = w.Write(out)
	return err
}

func metricsSummary(m config.MetricsConfig) string {
	if !m.Enabled {
		return "disabled"
	}
	return m.Listen + m.Path
}

func kafkaSummary(k config.KafkaConfig) string {
	if !k.Enabled {
		return "disabled"
	}
	return k.Topic + "@" + strings.Join(k.Brokers, ",")
}
