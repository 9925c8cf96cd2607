package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"positionScope/internal/config"
	"positionScope/internal/dex"
	"positionScope/internal/model"
	"positionScope/internal/storage"
)

type recordWriter interface {
	Write(value interface{}) error
}

type decodeStats struct {
	Total   int
	Decoded int
	Skipped int
	Failed  int
}

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router, err := newRouter(cfg)
	if err != nil {
		return err
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	outWriter, err := storage.NewJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := storage.NewJSONLWriter(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.String("position_manager", cfg.PositionManager.Hex()),
		zap.String("factory", cfg.Factory.Hex()),
	)

	stats, err := decodeStream(ctx, inputFile, router, outWriter, errWriter)
	if err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.Int("total", stats.Total),
		zap.Int("decoded", stats.Decoded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return nil
}

// newRouter sends position manager and factory logs to their decoders and
// every other emitter to the pool decoder.
func newRouter(cfg config.DecodeConfig) (*dex.Router, error) {
	poolDecoder, err := dex.NewV3PoolDecoder(dex.DecoderConfig{Topic0Map: cfg.Topic0Map})
	if err != nil {
		return nil, err
	}
	managerDecoder, err := dex.NewPositionManagerDecoder()
	if err != nil {
		return nil, err
	}
	factoryDecoder, err := dex.NewFactoryDecoder()
	if err != nil {
		return nil, err
	}

	router := dex.NewRouter(poolDecoder)
	router.Route(cfg.PositionManager, managerDecoder)
	router.Route(cfg.Factory, factoryDecoder)
	return router, nil
}

// decodeStream decodes raw log lines from in. Undecodable lines go to errs;
// only a write to out or a read failure stops the stream.
func decodeStream(ctx context.Context, in io.Reader, decoder dex.Decoder, out, errs recordWriter) (decodeStats, error) {
	var stats decodeStats

	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.Failed++
			writeDecodeError(errs, model.DecodeError{Error: err.Error()})
			continue
		}
		if record.Topic0() == "" {
			stats.Failed++
			writeDecodeError(errs, model.NewDecodeError(record, "", fmt.Errorf("missing topic0")))
			continue
		}
		if record.Removed || !decoder.CanDecode(record) {
			stats.Skipped++
			continue
		}

		event, err := decoder.Decode(record)
		if err != nil {
			stats.Failed++
			writeDecodeError(errs, model.NewDecodeError(record, decoder.Name(), err))
			continue
		}

		if err := out.Write(event); err != nil {
			return stats, err
		}
		stats.Decoded++
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}
	return stats, nil
}

func writeDecodeError(writer recordWriter, errRecord model.DecodeError) {
	if writer == nil {
		return
	}
	_ = writer.Write(errRecord)
}
