package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/fixquant/fixquant/internal/safetensors"
	"github.com/fixquant/fixquant/pkg/quant"
)

func inspectCmd() *cli.Command {
	var (
		modelPath  string
		showScales bool
		weightBits int64
		biasBits   int64
		scaleBits  int64
		maxShift   int64
		outScale   float64
	)

	defaults := quant.DefaultOptions()

	return &cli.Command{
		Name:  "inspect",
		Usage: "List the parameters of a .safetensors checkpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "path to .safetensors checkpoint",
				Destination: &modelPath,
				Required:    true,
			},
			&cli.BoolFlag{
				Name:        "scales",
				Usage:       "run the quantization chain without writing files and show scales",
				Destination: &showScales,
			},
			&cli.Int64Flag{Name: "weight-bits", Usage: "bit width for weight tensors", Value: int64(defaults.WeightBits), Destination: &weightBits},
			&cli.Int64Flag{Name: "bias-bits", Usage: "bit width for bias tensors", Value: int64(defaults.BiasBits), Destination: &biasBits},
			&cli.Int64Flag{Name: "scale-bits", Usage: "bit width of the requant mantissa", Value: int64(defaults.ScaleBits), Destination: &scaleBits},
			&cli.Int64Flag{Name: "max-shift", Usage: "exclusive upper bound for the requant shift search", Value: int64(defaults.MaxShift), Destination: &maxShift},
			&cli.Float64Flag{Name: "out-scale", Usage: "nominal output scale assumed for every layer", Value: defaults.OutScale, Destination: &outScale},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			_ = ctx

			f, err := safetensors.Open(modelPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open %s: %v", modelPath, err), 1)
			}

			fmt.Printf("Checkpoint: %s (%d tensors)\n\n", modelPath, len(f.Tensors()))

			tbl := tablewriter.NewWriter(os.Stdout)
			tbl.Header("Param", "Kind", "DType", "Shape", "Elements")
			for _, info := range f.Tensors() {
				tbl.Append([]string{
					info.Name,
					quant.KindOf(info.Name).String(),
					info.DType,
					formatShape(info.Shape),
					fmt.Sprintf("%d", info.Elems()),
				})
			}
			if err := tbl.Render(); err != nil {
				return cli.Exit(fmt.Sprintf("error: render table: %v", err), 1)
			}

			if !showScales {
				return nil
			}

			opts := quant.Options{
				WeightBits: int(weightBits),
				BiasBits:   int(biasBits),
				ScaleBits:  int(scaleBits),
				MaxShift:   int(maxShift),
				OutScale:   outScale,
			}
			store, err := safetensors.LoadParams(modelPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load %s: %v", modelPath, err), 1)
			}
			res, err := quant.QuantizeModel(store, opts)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			fmt.Println()
			printScales(res)
			return nil
		},
	}
}

func printScales(res *quant.Result) {
	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.Header("Param", "Kind", "Bits", "Scale", "Requant", "ScaleInt", "Shift")
	for _, p := range res.Params {
		requant, scaleInt, shift := "-", "-", "-"
		if p.Requant != nil {
			requant = fmt.Sprintf("%g", p.Requant.RealScale)
			scaleInt = fmt.Sprintf("%d", p.Requant.ScaleInt)
			shift = fmt.Sprintf("%d", p.Requant.Shift)
		}
		tbl.Append([]string{
			p.Name,
			p.Kind.String(),
			fmt.Sprintf("%d", p.Tensor.BitWidth),
			fmt.Sprintf("%g", p.Tensor.Scale),
			requant, scaleInt, shift,
		})
	}
	_ = tbl.Render()
}

func formatShape(shape []int) string {
	if len(shape) == 0 {
		return "[]"
	}
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
