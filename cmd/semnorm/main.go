// Command semnorm classifies CSV tables and resolves entity references from
// the command line.
//
// Usage:
//
//	semnorm [-config file] [-catalog file] classify -csv grades.csv
//	semnorm [-config file] [-catalog file] resolve -type teacher [-id] -region r value...
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/cognicore/semnorm/pkg/semnorm"
	"github.com/cognicore/semnorm/pkg/semnorm/config"
	"github.com/cognicore/semnorm/pkg/semnorm/dataset"
	"github.com/cognicore/semnorm/pkg/semnorm/entity"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("semnorm", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file (environment only when empty)")
	catalogPath := fs.String("catalog", "", "Catalog YAML (overrides catalog.path)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("usage: semnorm [-config file] [-catalog file] <classify|resolve> [flags]")
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "classify", "resolve":
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	engine, cleanup, err := buildEngine(ctx, *configPath, *catalogPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if cmd == "classify" {
		return classifyCmd(ctx, engine, rest, out)
	}
	return resolveCmd(ctx, engine, rest, out)
}

func buildEngine(ctx context.Context, configPath, catalogPath string) (*semnorm.Engine, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if catalogPath != "" {
		cfg.Catalog.Path = catalogPath
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	loader := config.Loader{Config: cfg, Logger: logger}
	components, err := loader.Load(ctx)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("load components: %w", err)
	}

	engine, err := semnorm.New(semnorm.Options{
		Provider:   components.Provider,
		Catalog:    components.Catalog,
		Store:      components.Store,
		Logger:     logger,
		Metrics:    components.Metrics,
		Classifier: components.Classifier,
		Resolver:   entity.Options{FirstNames: components.FirstNames, Logger: logger},
	})
	if err != nil {
		components.Close()
		_ = logger.Sync()
		return nil, nil, err
	}

	cleanup := func() {
		if err := engine.Close(); err != nil {
			logger.Warn("close engine", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return engine, cleanup, nil
}

func classifyCmd(ctx context.Context, engine *semnorm.Engine, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	csvPath := fs.String("csv", "", "CSV file with a header row (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *csvPath == "" {
		return errors.New("classify: -csv is required")
	}

	ds, err := readCSV(*csvPath)
	if err != nil {
		return err
	}
	res, err := engine.NormalizeTable(ctx, ds)
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

func resolveCmd(ctx context.Context, engine *semnorm.Engine, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	typeName := fs.String("type", "", "Entity type: teacher, student, parent, region, school or subject (required)")
	isID := fs.Bool("id", false, "Values are source-system identifiers")
	region := fs.String("region", "", "Region the run is scoped to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := entity.ParseType(*typeName)
	if err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("resolve: at least one value is required")
	}

	r, err := engine.BeginRun(ctx, *region)
	if err != nil {
		return err
	}
	matches, err := r.ResolveAll(ctx, fs.Args(), t, *isID)
	if err != nil {
		return err
	}
	return writeJSON(out, struct {
		RunID   string         `json:"run_id"`
		Matches []entity.Match `json:"matches"`
	}{r.ID(), matches})
}

// readCSV loads a CSV file whose first row is the header. Cells stay
// strings; dtype inference coerces them.
func readCSV(path string) (dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("read csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return dataset.Dataset{}, fmt.Errorf("csv %s has no header row", path)
	}

	ds := dataset.Dataset{Headers: records[0]}
	for _, rec := range records[1:] {
		row := make([]any, len(rec))
		for i, cell := range rec {
			row[i] = cell
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
