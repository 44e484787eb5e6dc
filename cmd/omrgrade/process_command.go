package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"omr-engine/internal/engine"
	"omr-engine/internal/layout"
	"omr-engine/internal/report"
	"omr-engine/internal/sheet"
)

var imageExtensions = map[string]sheet.Format{
	".jpg":  sheet.FormatJPEG,
	".jpeg": sheet.FormatJPEG,
	".png":  sheet.FormatPNG,
	".tif":  sheet.FormatTIFF,
	".tiff": sheet.FormatTIFF,
	".bmp":  sheet.FormatBMP,
	".pdf":  sheet.FormatPDF,
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var versionFlag string
	var readVersionBox bool
	var workersFlag int
	var overlayDirFlag string
	var outFlag string
	var passMarkFlag int

	cmd := &cobra.Command{
		Use:   "process <image-or-directory>...",
		Short: "Score a batch of captured answer sheets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if ctx.keysFlag == "" {
				return fmt.Errorf("an answer-key file is required (--keys)")
			}
			th, err := ctx.loadThresholds()
			if err != nil {
				return err
			}
			table, err := ctx.loadTable()
			if err != nil {
				return err
			}

			raws, err := collectSheets(args, layout.Version(versionFlag))
			if err != nil {
				return err
			}
			if len(raws) == 0 {
				return fmt.Errorf("no sheet images found under %s", strings.Join(args, ", "))
			}

			if overlayDirFlag != "" {
				if err := os.MkdirAll(overlayDirFlag, 0o755); err != nil {
					return fmt.Errorf("failed to create overlay directory: %w", err)
				}
			}

			opts := engine.DefaultOptions()
			opts.OverlayDir = overlayDirFlag
			opts.ReadVersionBox = readVersionBox
			if workersFlag > 0 {
				opts.Workers = workersFlag
			}

			eng, err := engine.New(table, th, opts, log)
			if err != nil {
				return err
			}
			defer eng.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("batch started",
				"sheets", len(raws),
				"workers", opts.Workers,
				"versions", table.Versions())

			// On cancellation the engine hands back the outcomes that were
			// already recorded; persist those before reporting the error.
			outcomes, batchErr := eng.ProcessBatch(runCtx, raws)
			if batchErr != nil && len(outcomes) == 0 {
				return batchErr
			}

			if outFlag != "" {
				if err := writeOutcomes(outFlag, outcomes); err != nil {
					return err
				}
				log.Info("results written", "path", outFlag)
			}

			summary := report.Summarize(outcomes, passMarkFlag)
			summary.RenderTable(cmd.OutOrStdout())
			return batchErr
		},
	}

	cmd.Flags().StringVarP(&versionFlag, "version", "v", "", "Sheet version for the whole batch (A-D)")
	cmd.Flags().BoolVar(&readVersionBox, "read-version-box", false, "OCR the printed version box on sheets without a version")
	cmd.Flags().IntVarP(&workersFlag, "workers", "w", 0, "Concurrent sheet workers (default: CPU count)")
	cmd.Flags().StringVar(&overlayDirFlag, "overlay-dir", "", "Write annotated review overlays to this directory")
	cmd.Flags().StringVarP(&outFlag, "out", "o", "", "Write per-sheet results JSON to this file")
	cmd.Flags().IntVar(&passMarkFlag, "pass-mark", 40, "Total score counted as a pass in the summary")

	return cmd
}

// collectSheets expands the argument list into raw sheet inputs. Directories
// are walked recursively, keeping only recognized image extensions; the
// filename stem doubles as the student identifier.
func collectSheets(args []string, version layout.Version) ([]*sheet.RawSheetImage, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				if _, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]; ok {
					paths = append(paths, path)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)

	raws := make([]*sheet.RawSheetImage, 0, len(paths))
	for _, path := range paths {
		format, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil, sheet.Wrap(sheet.ErrInvalidImageFormat, "intake",
				fmt.Sprintf("unsupported file type %s", path), nil)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		raws = append(raws, &sheet.RawSheetImage{
			Data:      data,
			Format:    format,
			StudentID: stem,
			Version:   string(version),
			Source:    path,
		})
	}
	return raws, nil
}

func writeOutcomes(path string, outcomes []*engine.SheetOutcome) error {
	data, err := json.MarshalIndent(outcomes, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
