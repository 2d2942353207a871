package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/peterbourgon/ff/v4/fftoml"
	"golang.org/x/text/language"

	"github.com/zombor/billscan/internal/bill"
	"github.com/zombor/billscan/internal/export"
	"github.com/zombor/billscan/internal/ledger"
	"github.com/zombor/billscan/internal/logging"
	"github.com/zombor/billscan/internal/pipeline"
	"github.com/zombor/billscan/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("billscan")
	var (
		_           = fs.StringLong("config", "", "TOML config file (optional)")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		scannerType = fs.StringLong("scanner", "canned", "Scanner type: 'canned', 'gemini' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		maxSize     = fs.StringLong("max-size", "10MiB", "Largest document accepted")
		timeout     = fs.DurationLong("timeout", 2*time.Minute, "Extraction timeout per document (0 disables)")
		retries     = fs.IntLong("retries", 1, "Retries after an internal failure or timeout")
		stagingDir  = fs.StringLong("staging-dir", "", "Stage documents in this directory instead of memory")
		search      = fs.StringLong("search", "", "Only show bills whose vendor or category contains this text")
		category    = fs.StringLong("category", string(ledger.AllCategories), "Only show this category ('all' for every category)")
		sortKey     = fs.StringLong("sort", "", "Sort by vendor, billNumber, category, status, issueDate, dueDate or amount")
		order       = fs.StringLong("order", "asc", "Sort direction: asc or desc")
		locale      = fs.StringLong("locale", "en", "Locale used to sort text columns")
		exportPath  = fs.StringLong("export", "", "Write the listed bills to this XLSX file")
		summary     = fs.BoolLong("summary", "Print status, category and monthly totals")
		_           = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILLSCAN"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(fftoml.Parse),
		ff.WithConfigAllowMissingFile(),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(*logLevel)
	logging.SetupWithLevel(level)
	if err != nil {
		slog.Warn("Using default log level", "error", err)
	}

	files := fs.GetArgs()
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: no bill files given\n")
		os.Exit(1)
	}

	query, err := buildQuery(*search, *category, *sortKey, *order)
	if err != nil {
		slog.Error("Invalid query", "error", err)
		os.Exit(1)
	}
	tag, err := language.Parse(*locale)
	if err != nil {
		slog.Error("Invalid locale", "locale", *locale, "error", err)
		os.Exit(1)
	}
	maxBytes, err := humanize.ParseBytes(*maxSize)
	if err != nil {
		slog.Error("Invalid max size", "value", *maxSize, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize extractor based on type
	var extractor scanning.Extractor
	switch *scannerType {
	case "canned":
		slog.Info("Using canned scanner")
		extractor = scanning.NewCanned(50 * time.Millisecond)
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		extractor, err = scanning.NewGemini(ctx, apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		extractor, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "canned, gemini or ollama")
		os.Exit(1)
	}
	defer extractor.Close()

	opts := []pipeline.Option{
		pipeline.WithConfig(pipeline.Config{
			MaxDocumentBytes: int64(maxBytes),
			ExtractTimeout:   *timeout,
		}),
	}
	if *stagingDir != "" {
		staging, err := pipeline.NewDirStaging(*stagingDir)
		if err != nil {
			slog.Error("Failed to initialize staging", "error", err)
			os.Exit(1)
		}
		opts = append(opts, pipeline.WithStaging(staging))
	}

	bills := ledger.New(ledger.WithLocale(tag))
	p := pipeline.New(extractor, opts...)
	p.Subscribe(pipeline.AutoCommit(bills, nil))

	result, err := ingest(ctx, p, files, *retries)
	slog.Info("Scan finished", "completed", result.Completed, "failed", result.Failed, "rejected", result.Rejected)
	if err != nil {
		slog.Error("Scan interrupted", "error", err)
	}

	listed := bills.Query(query)
	fmt.Println(renderBills(listed))
	if *summary {
		fmt.Println(renderSummary(bills))
	}

	if *exportPath != "" {
		data, err := export.XLSX(listed)
		if err != nil {
			slog.Error("Failed to export bills", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*exportPath, data, 0o644); err != nil {
			slog.Error("Failed to write export", "path", *exportPath, "error", err)
			os.Exit(1)
		}
		slog.Info("Export written", "path", *exportPath, "size", humanize.IBytes(uint64(len(data))))
	}

	if err != nil || result.Failed > 0 || result.Rejected > 0 {
		os.Exit(1)
	}
}

// buildQuery turns the query flags into a ledger.Query
func buildQuery(search, category, sortKey, order string) (ledger.Query, error) {
	q := ledger.Query{Search: search}

	if !strings.EqualFold(strings.TrimSpace(category), string(ledger.AllCategories)) && category != "" {
		c, ok := bill.ParseCategory(category)
		if !ok {
			return ledger.Query{}, fmt.Errorf("unknown category %q, want one of %s", category, strings.Join(bill.CategoryNames(), ", "))
		}
		q.Category = c
	}

	if sortKey != "" {
		key, err := ledger.ParseSortKey(sortKey)
		if err != nil {
			return ledger.Query{}, err
		}
		q.Sort = key
	}

	dir, err := ledger.ParseDirection(order)
	if err != nil {
		return ledger.Query{}, err
	}
	q.Direction = dir
	return q, nil
}
