package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/pktt/internal/config"
	"firestige.xyz/pktt/internal/core"
	"firestige.xyz/pktt/internal/core/decoder"
	"firestige.xyz/pktt/internal/filter"
	"firestige.xyz/pktt/internal/log"
	"firestige.xyz/pktt/internal/metrics"
	"firestige.xyz/pktt/internal/output"
	"firestige.xyz/pktt/internal/sink/kafka"
	"firestige.xyz/pktt/internal/source/file"
)

type decodeOptions struct {
	file      string
	filter    string
	output    string
	limit     int
	strictGSS bool
}

var decodeOpts decodeOptions

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode a capture file",
	Long: `Decode every frame of a pcap or pcapng file with one decode session,
so replies are paired with the calls seen earlier in the same file.

Examples:
  pktt decode -f trace.pcap                          # table of all packets
  pktt decode -f trace.pcapng --filter "port 111"    # portmap traffic only
  pktt decode -f trace.pcap -o yaml --limit 10       # first 10 packets as YAML
  pktt decode -c config.yml -f trace.pcap --strict-gss`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runDecode(ctx, cfg, decodeOpts, cmd.OutOrStdout())
	},
}

func init() {
	decodeCmd.Flags().StringVarP(&decodeOpts.file, "file", "f", "", "capture file to decode (required)")
	decodeCmd.Flags().StringVar(&decodeOpts.filter, "filter", "", "frame filter, e.g. \"udp and port 111\" (overrides source.filter)")
	decodeCmd.Flags().StringVarP(&decodeOpts.output, "output", "o", "table", "output format: table, yaml or json")
	decodeCmd.Flags().IntVarP(&decodeOpts.limit, "limit", "n", 0, "stop after this many packets (0 for all)")
	decodeCmd.Flags().BoolVar(&decodeOpts.strictGSS, "strict-gss", false, "treat malformed RPCSEC_GSS envelopes as packet errors")
	_ = decodeCmd.MarkFlagRequired("file")
}

var errLimitReached = errors.New("packet limit reached")

func runDecode(ctx context.Context, cfg *config.GlobalConfig, opts decodeOptions, w io.Writer) error {
	format, err := output.ParseFormat(opts.output)
	if err != nil {
		return err
	}

	expr := opts.filter
	if expr == "" {
		expr = cfg.Source.Filter
	}
	f, err := filter.New(expr)
	if err != nil {
		return err
	}

	src, err := file.Open(opts.file, file.WithFilter(f))
	if err != nil {
		return err
	}
	defer src.Close()

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Stop(context.Background())
	}

	logger := log.GetLogger()

	var sink *kafka.Sink
	if cfg.Sink.Kafka.Enabled {
		sink, err = kafka.New(cfg.Sink.Kafka, kafka.WithLogger(logger))
		if err != nil {
			return err
		}
		defer sink.Close()
	}

	session := decoder.NewSession(
		decoder.WithLogger(logger),
		decoder.WithStrictGSS(cfg.Decoder.StrictGSS || opts.strictGSS),
	)
	printer := output.NewPrinter(w, format)

	var printed, failed int
	err = session.Each(ctx, src, func(pkt *core.Packet) error {
		if pkt.Err != nil {
			failed++
		}
		if err := printer.Print(pkt); err != nil {
			return fmt.Errorf("print packet %d: %w", pkt.Index, err)
		}
		if sink != nil {
			if err := sink.Report(ctx, pkt); err != nil {
				return err
			}
		}
		printed++
		if opts.limit > 0 && printed >= opts.limit {
			return errLimitReached
		}
		return nil
	})
	if errors.Is(err, errLimitReached) {
		err = nil
	}
	if flushErr := printer.Flush(); err == nil {
		err = flushErr
	}

	read, filtered := src.Stats()
	logger.WithFields(map[string]interface{}{
		"file":     opts.file,
		"read":     read,
		"filtered": filtered,
		"decoded":  printed,
		"failed":   failed,
		"pending":  session.Pending(),
	}).Info("decode finished")
	return err
}
