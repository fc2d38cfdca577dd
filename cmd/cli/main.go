package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"tamcal/adapters/excel"
	"tamcal/adapters/report"
	"tamcal/adapters/store"
	"tamcal/app"
	"tamcal/domain/core"
	"tamcal/internal/calibration"
	"tamcal/internal/config"
	"tamcal/internal/errors"
	"tamcal/ports"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "tamcal",
		Short:         "Calibrate and simulate the tumor / macrophage / angiogenesis model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newFitCmd(),
		newSimulateCmd(),
		newFitsCmd(),
		newReportCmd(),
		newMigrateCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", errors.GetCode(err), err)
		os.Exit(1)
	}
}

func newFitCmd() *cobra.Command {
	var (
		req        app.CalibrationRequest
		resultsDir string
		noStore    bool
		workers    int
		seed       int64
		samples    int
		gridScale  float64
		refine     bool
	)

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit the proliferation and recruitment submodels and run the coupled demo",
		Long: `Fit both submodels to the configured tables, write the JSON documents and
the markdown/HTML report into the results directory, and store the run.

Table paths default to DATA_DIR and the PE_DATA_PATH / QIAN_FIGC_PATH /
QIAN_FIGD_PATH environment variables; flags override them.

Example: tamcal fit --pe data/Pe_Proliferation.csv --samples 1000 --seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("workers") {
				cfg.Search.Workers = workers
			}
			if flags.Changed("seed") {
				cfg.Search.Seed = seed
			}
			if flags.Changed("samples") {
				cfg.Search.QianSamples = samples
			}
			if flags.Changed("grid-scale") {
				cfg.Search.GridScale = gridScale
			}
			if flags.Changed("refine") {
				cfg.Search.Refine = refine
			}
			if resultsDir == "" {
				resultsDir = cfg.Data.ResultsDir
			}

			base := app.RequestFromConfig(cfg)
			fill := func(dst *string, def string) {
				if *dst == "" {
					*dst = def
				}
			}
			fill(&req.PePath, base.PePath)
			fill(&req.QianFigCPath, base.QianFigCPath)
			fill(&req.QianFigDPath, base.QianFigDPath)
			fill(&req.PeGrowthPath, base.PeGrowthPath)
			fill(&req.SigmaCCL2Path, base.SigmaCCL2Path)
			fill(&req.KappaVEGFPath, base.KappaVEGFPath)

			var repo ports.FitRepository
			if !noStore {
				db, err := store.Open(cmd.Context(), cfg.Database.Driver, cfg.Database.URL)
				if err != nil {
					return errors.DatabaseError("failed to open fit store", err)
				}
				defer db.Close()
				repo = store.NewFitRepository(db)
			}

			svc := app.NewCalibrationService(excel.NewLoader(), repo, app.SettingsFromConfig(cfg), app.DemoFromConfig(cfg), cfg.Search.Timeout)
			run, err := svc.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			written, err := report.WriteAll(resultsDir, run)
			if err != nil {
				return err
			}

			fmt.Printf("Run %s\n", run.ID)
			for _, fit := range run.Fits() {
				fmt.Printf("  %-5s loss %.6g (%d/%d evaluated, %d non-finite)\n",
					fit.Problem, fit.Loss, fit.Evaluated, fit.Total, fit.Excluded)
			}
			for _, path := range written {
				fmt.Printf("  wrote %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.PePath, "pe", "", "Proliferation table (CSV or XLSX)")
	cmd.Flags().StringVar(&req.QianFigCPath, "figc", "", "Lung recruitment table (FigC)")
	cmd.Flags().StringVar(&req.QianFigDPath, "figd", "", "Blockade table (FigD)")
	cmd.Flags().StringVar(&req.PeGrowthPath, "growth", "", "Optional growth table for the growth-rate comparison")
	cmd.Flags().StringVar(&req.SigmaCCL2Path, "ccl2", "", "Optional CCL2 table for sigma_CCL2")
	cmd.Flags().StringVar(&req.KappaVEGFPath, "vegf", "", "Optional VEGF table for kappa_VEGF")
	cmd.Flags().StringVar(&resultsDir, "results-dir", "", "Output directory (default RESULTS_DIR)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not persist the run")
	cmd.Flags().IntVar(&workers, "workers", 0, "Search workers (0 = one per CPU)")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Seed for the recruitment random search")
	cmd.Flags().IntVar(&samples, "samples", 600, "Recruitment random-search samples")
	cmd.Flags().Float64Var(&gridScale, "grid-scale", 1.0, "Scale factor on the proliferation grid resolution")
	cmd.Flags().BoolVar(&refine, "refine", false, "Polish each winner with Nelder-Mead inside the bounds")

	return cmd
}

func newSimulateCmd() *cobra.Command {
	var (
		req     app.SimulateRequest
		params  map[string]string
		weights map[string]string
		initial map[string]string
		drivers map[string]string
		times   []float64
		from    string
		problem string
	)

	cmd := &cobra.Command{
		Use:   "simulate [proliferation|recruitment|full]",
		Short: "Integrate one model and print the trajectory as JSON",
		Long: `Integrate one model with the given parameters and print the trajectory.

Fitted parameters can be read from a combined_params.json written by fit;
explicit --param values override them.

Example: tamcal simulate full --param r=0.03 --param alpha_M2=0.01 --weight M2=1 --driver M2=1 --horizon 72
         tamcal simulate recruitment --from results/combined_params.json --problem qian --preset mets_lung`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Model = args[0]
			req.Times = times
			var err error
			if req.Params, err = parseValues("param", params); err != nil {
				return err
			}
			if from != "" {
				doc, err := os.ReadFile(from)
				if err != nil {
					return errors.InvalidInput(fmt.Sprintf("failed to read %s: %v", from, err))
				}
				fitted, err := app.ParamsFromCombined(doc, problem)
				if err != nil {
					return err
				}
				req.Params = app.MergeParams(fitted, req.Params)
			}
			if req.Weights, err = parseValues("weight", weights); err != nil {
				return err
			}
			if req.Initial, err = parseValues("initial", initial); err != nil {
				return err
			}
			if req.Drivers, err = parseValues("driver", drivers); err != nil {
				return err
			}

			res, err := app.Simulate(req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringToStringVar(&params, "param", nil, "Model parameter name=value")
	cmd.Flags().StringToStringVar(&weights, "weight", nil, "Driver weight name=value (full model)")
	cmd.Flags().StringToStringVar(&initial, "initial", nil, "Initial state or scenario value name=value")
	cmd.Flags().StringToStringVar(&drivers, "driver", nil, "Driver intensity name=value")
	cmd.Flags().StringVar(&from, "from", "", "combined_params.json to take fitted parameters from")
	cmd.Flags().StringVar(&problem, "problem", "pe", "Problem section of --from (pe or qian)")
	cmd.Flags().StringVar(&req.Preset, "preset", "", "Preset: control, m2, tam, control_lung, mets_lung")
	cmd.Flags().BoolVar(&req.Blockade, "blockade", false, "Apply CCL2 blockade to a lung preset")
	cmd.Flags().Float64SliceVar(&times, "times", nil, "Output times (proliferation, recruitment)")
	cmd.Flags().Float64Var(&req.Horizon, "horizon", 0, "Horizon for the full model")
	cmd.Flags().IntVar(&req.Steps, "steps", 0, "Output points for the full model")
	cmd.Flags().BoolVar(&req.NoAngio, "no-angiogenesis", false, "Disable V production in the full model")

	return cmd
}

func parseValues(flag string, raw map[string]string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("--%s %s=%s: not a number", flag, k, v))
		}
		out[strings.TrimSpace(k)] = f
	}
	return out, nil
}

func openRepository(ctx context.Context) (*store.FitRepository, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, nil, errors.DatabaseError("failed to open fit store", err)
	}
	return store.NewFitRepository(db), func() { db.Close() }, nil
}

func newFitsCmd() *cobra.Command {
	var filters ports.FitFilters

	cmd := &cobra.Command{
		Use:   "fits",
		Short: "List stored fits, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeDB, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			fits, err := repo.ListFits(cmd.Context(), filters)
			if err != nil {
				return err
			}
			if len(fits) == 0 {
				fmt.Println("No fits stored")
				return nil
			}
			for _, f := range fits {
				fmt.Printf("%s  %-5s  loss %-12.6g run %s  %s\n",
					f.ID, f.Problem, f.Loss, f.RunID, f.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filters.Problem, "problem", "", "Only fits of this problem (pe or qian)")
	cmd.Flags().IntVar(&filters.Limit, "limit", 20, "Maximum fits to list")

	return cmd
}

func newReportCmd() *cobra.Command {
	var runID string
	var outDir string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Rewrite the result documents and report of a stored run",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeDB, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			var run *calibration.Run
			if runID == "" {
				run, err = repo.LatestRun(cmd.Context())
			} else {
				id, perr := core.ParseRunID(runID)
				if perr != nil {
					return errors.InvalidInput(perr.Error())
				}
				run, err = repo.GetRun(cmd.Context(), id)
			}
			if err != nil {
				return err
			}

			written, err := report.WriteAll(outDir, run)
			if err != nil {
				return err
			}
			for _, path := range written {
				fmt.Println(path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Run ID (default: latest)")
	cmd.Flags().StringVar(&outDir, "out", "results", "Output directory")

	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the fit database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, closeDB, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			closeDB()
			fmt.Println("Schema up to date")
			return nil
		},
	}
}
