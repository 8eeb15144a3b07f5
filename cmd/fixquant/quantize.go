package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/fixquant/fixquant/internal/export"
	"github.com/fixquant/fixquant/internal/logger"
	"github.com/fixquant/fixquant/internal/safetensors"
	"github.com/fixquant/fixquant/pkg/quant"
)

func quantizeCmd() *cli.Command {
	var (
		modelPath  string
		outDir     string
		weightBits int64
		biasBits   int64
		scaleBits  int64
		maxShift   int64
		outScale   float64
		logLevel   string
		logFormat  string
	)

	defaults := quant.DefaultOptions()

	return &cli.Command{
		Name:  "quantize",
		Usage: "Quantize a .safetensors checkpoint to fixed-point hex files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "path to .safetensors checkpoint",
				Destination: &modelPath,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output directory for hex files and metadata",
				Value:       "weights/",
				Destination: &outDir,
			},
			&cli.Int64Flag{
				Name:        "weight-bits",
				Usage:       "bit width for weight tensors",
				Value:       int64(defaults.WeightBits),
				Destination: &weightBits,
			},
			&cli.Int64Flag{
				Name:        "bias-bits",
				Usage:       "bit width for bias tensors",
				Value:       int64(defaults.BiasBits),
				Destination: &biasBits,
			},
			&cli.Int64Flag{
				Name:        "scale-bits",
				Usage:       "bit width of the requant mantissa",
				Value:       int64(defaults.ScaleBits),
				Destination: &scaleBits,
			},
			&cli.Int64Flag{
				Name:        "max-shift",
				Usage:       "exclusive upper bound for the requant shift search",
				Value:       int64(defaults.MaxShift),
				Destination: &maxShift,
			},
			&cli.Float64Flag{
				Name:        "out-scale",
				Usage:       "nominal output scale assumed for every layer",
				Value:       defaults.OutScale,
				Destination: &outScale,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Value:       "info",
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log format (pretty, text, json)",
				Value:       "pretty",
				Destination: &logFormat,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			_ = ctx
			applyQuantizeConfig(c, LoadConfig(),
				&outDir, &weightBits, &biasBits, &scaleBits, &maxShift, &outScale,
				&logLevel, &logFormat)

			log := newLogger(logFormat, logLevel)

			opts := quant.Options{
				WeightBits: int(weightBits),
				BiasBits:   int(biasBits),
				ScaleBits:  int(scaleBits),
				MaxShift:   int(maxShift),
				OutScale:   outScale,
			}
			if err := opts.Validate(); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			store, err := safetensors.LoadParams(modelPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load %s: %v", modelPath, err), 1)
			}
			log.Info("loaded checkpoint", "path", modelPath, "params", store.Len())

			res, err := quant.QuantizeModel(store, opts)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			for _, name := range res.Skipped {
				log.Debug("skipped parameter", "param", name)
			}

			manifest, err := export.New(outDir, log).Export(res, opts, modelPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			log.Info("quantization complete",
				"run_id", manifest.RunID,
				"tensors", len(manifest.Files),
				"skipped", len(res.Skipped),
				"out", outDir,
			)
			return nil
		},
	}
}

func newLogger(format, level string) logger.Logger {
	lv := logger.ParseLevel(level)
	switch format {
	case "json":
		return logger.JSON(os.Stderr, lv)
	case "text":
		return logger.Text(os.Stderr, lv)
	default:
		return logger.Pretty(os.Stderr, lv)
	}
}
