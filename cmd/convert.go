package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lehigh-university-libraries/docprep/internal/backend"
	"github.com/lehigh-university-libraries/docprep/internal/batch"
	"github.com/lehigh-university-libraries/docprep/internal/convert"
	"github.com/lehigh-university-libraries/docprep/internal/netcall"
	"github.com/lehigh-university-libraries/docprep/internal/options"
	"github.com/lehigh-university-libraries/docprep/internal/output"
	"github.com/lehigh-university-libraries/docprep/internal/report"
	"github.com/spf13/cobra"
)

func newConvertCmd() *cobra.Command {
	var (
		backendName    string
		serverURL      string
		apiKey         string
		geminiKey      string
		format         string
		langs          string
		pageFormat     string
		paginate       bool
		useLLM         bool
		formatLines    bool
		redoInlineMath bool
		disableImages  bool
		concurrency    int
		outputDir      string
		archivePath    string
		reportPath     string
		check          bool
	)

	cmd := &cobra.Command{
		Use:   "convert [files...]",
		Short: "Convert PDF files to markdown, JSON or HTML",
		Long: `Converts PDF files by submitting them to a remote Marker backend and
polling until each conversion completes. Files are processed
concurrently; a batch with at least one successful conversion exits
zero and reports per-file failures on stdout.`,
		Example: `  # Convert against the Datalab cloud API
  docprep convert --api-key=$DATALAB_API_KEY thesis.pdf

  # Convert a directory's worth of PDFs against a self-hosted server
  docprep convert --backend selfhosted --server-url http://localhost:8001 *.pdf

  # Paginated markdown with page numbers, packaged as a zip
  docprep convert --paginate --page-format numbers --archive out.zip *.pdf

  # Check that the backend is reachable
  docprep convert --check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openConfigStore()
			if err != nil {
				slog.Debug("Config store unavailable", "error", err)
			}
			if backendName == "" {
				backendName = configDefault(store, "backend", "datalab")
			}
			if serverURL == "" {
				serverURL = configDefault(store, "server_url", os.Getenv("DOCPREP_SERVER_URL"))
			}

			jobCfg := convert.DefaultConfig()
			caller := netcall.New(jobCfg.CallTimeout)
			strategy, err := backend.ForName(backendName, serverURL, caller)
			if err != nil {
				return err
			}

			if check {
				if err := strategy.Health(cmd.Context()); err != nil {
					return fmt.Errorf("backend %s is not healthy: %w", strategy.Name(), err)
				}
				fmt.Printf("Backend %s is online\n", strategy.Name())
				return nil
			}

			if len(args) == 0 {
				return fmt.Errorf("no input files (pass one or more PDF paths)")
			}

			opts, err := buildOptions(format, langs, pageFormat, paginate, useLLM, formatLines, redoInlineMath, disableImages)
			if err != nil {
				return err
			}

			files, err := readSourceFiles(args)
			if err != nil {
				return err
			}

			o := &batch.Orchestrator{
				Strategy:    strategy,
				Options:     opts,
				Credentials: resolveCredentials(apiKey, geminiKey),
				Concurrency: concurrency,
				JobConfig:   jobCfg,
				OnJobProgress: func(filename string, p convert.Progress) {
					slog.Debug("Polling", "file", filename, "status", p.Status, "attempt", p.Attempt)
				},
			}

			result, runErr := o.Run(cmd.Context(), files)
			if result == nil {
				return runErr
			}

			fmt.Println(result.Manifest.Summary())
			for _, outcome := range result.Manifest.Outcomes {
				if outcome.Status == batch.StatusFailed {
					fmt.Printf("  %s: %s\n", outcome.Filename, outcome.Error)
				}
			}

			if err := saveOutputs(result.Files, outputDir, archivePath); err != nil {
				return err
			}
			if reportPath != "" {
				r := report.Build(strategy.Name(), opts, concurrency, result.Manifest)
				if err := r.Save(reportPath); err != nil {
					return err
				}
				fmt.Printf("Report saved to: %s\n", reportPath)
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&backendName, "backend", "b", "", "Conversion backend: datalab or selfhosted")
	cmd.Flags().StringVar(&serverURL, "server-url", "", "Self-hosted marker server URL (or Datalab submit URL override)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Datalab API key (defaults to DATALAB_API_KEY)")
	cmd.Flags().StringVar(&geminiKey, "gemini-key", "", "Gemini API key for LLM-enhanced conversion (defaults to GEMINI_API_KEY)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: markdown, json or html (default markdown, or DOCPREP_OUTPUT_FORMAT)")
	cmd.Flags().StringVar(&langs, "langs", "", "Comma-separated OCR language hints")
	cmd.Flags().StringVar(&pageFormat, "page-format", "none", "Page marker rendering: none, separators or numbers")
	cmd.Flags().BoolVar(&paginate, "paginate", false, "Request page markers from the backend")
	cmd.Flags().BoolVar(&useLLM, "use-llm", false, "Enable LLM-enhanced conversion")
	cmd.Flags().BoolVar(&formatLines, "format-lines", false, "Reformat lines in the output")
	cmd.Flags().BoolVar(&redoInlineMath, "redo-inline-math", false, "Re-run inline math detection (requires --use-llm)")
	cmd.Flags().BoolVar(&disableImages, "disable-image-extraction", false, "Describe images instead of extracting them (requires --use-llm)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "Number of files converted in parallel")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "Directory for converted files")
	cmd.Flags().StringVar(&archivePath, "archive", "", "Package converted files into a zip at this path")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a batch report (.yaml or .parquet)")
	cmd.Flags().BoolVar(&check, "check", false, "Check backend health and exit")

	return cmd
}

// buildOptions resolves conversion options in flag > environment >
// default order. An empty format flag lets DOCPREP_OUTPUT_FORMAT apply
// before the markdown default.
func buildOptions(format, langs, pageFormat string, paginate, useLLM, formatLines, redoInlineMath, disableImages bool) (options.Options, error) {
	opts := options.Default()
	opts.OutputFormat = format
	opts.Langs = langs
	opts.Paginate = paginate
	opts.UseLLM = useLLM
	opts.FormatLines = formatLines
	opts.RedoInlineMath = redoInlineMath
	opts.DisableImageExtraction = disableImages
	opts.FromEnv()

	pf, err := options.ParsePageFormat(pageFormat)
	if err != nil {
		return opts, err
	}
	opts.PageFormat = pf

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func readSourceFiles(paths []string) ([]backend.SourceFile, error) {
	files := make([]backend.SourceFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		name := filepath.Base(p)
		if err := convert.ValidateSource(name, int64(len(data))); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		files = append(files, backend.SourceFile{Name: name, Data: data})
	}
	return files, nil
}

// saveOutputs writes a single success directly and bundles multiple
// successes into one zip; --archive only overrides where the zip goes.
func saveOutputs(files []output.File, outputDir, archivePath string) error {
	if len(files) == 0 {
		return nil
	}

	sink := output.DirSink{Dir: outputDir}

	if archivePath == "" && len(files) == 1 {
		f := files[0]
		if err := sink.Save(f.Name, f.Content); err != nil {
			return err
		}
		fmt.Printf("Converted file saved to: %s\n", filepath.Join(outputDir, f.Name))
		return nil
	}

	data, err := output.BuildArchive(files)
	if err != nil {
		return err
	}

	if archivePath == "" {
		archiveName := "converted.zip"
		if err := sink.Save(archiveName, data); err != nil {
			return err
		}
		fmt.Printf("Archive saved to: %s\n", filepath.Join(outputDir, archiveName))
		return nil
	}

	if dir := filepath.Dir(archivePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create archive directory: %w", err)
		}
	}
	if err := os.WriteFile(archivePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	fmt.Printf("Archive saved to: %s\n", archivePath)
	return nil
}
