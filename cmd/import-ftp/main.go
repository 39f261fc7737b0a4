// import-ftp downloads import files from an FTP drop folder and loads them
// into the business of the acting user.
//
// Usage:
//
//	FTP_HOST=ftp.example.com FTP_USERNAME=... FTP_PASSWORD=... \
//	go run ./cmd/import-ftp --user <username> [--dry-run] [--strict]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/ftpimport"
	"github.com/rentiq/rentiq_backend/importer"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/spf13/cobra"
)

type options struct {
	username   string
	workDir    string
	successDir string
	failedDir  string
	dryRun     bool
	strict     bool
	ftp        ftpimport.Config
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	opts := &options{ftp: ftpimport.ConfigFromEnv()}
	cmd := &cobra.Command{
		Use:   "import-ftp",
		Short: "Import clients, inventory, payments and petty cash files from FTP",
		Long: `Downloads files matching the pattern from the FTP folder, imports each
<entity>_*.csv|xlsx file as the given user and archives it on the server.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.username, "user", os.Getenv("IMPORT_USERNAME"), "username the import acts as; its business receives the rows")
	f.StringVar(&opts.workDir, "work-dir", envOr("IMPORT_WORK_DIR", filepath.Join(os.TempDir(), "rentiq-import")), "local download folder")
	f.StringVar(&opts.successDir, "success-dir", os.Getenv("IMPORT_SUCCESS_DIR"), "local folder for imported files")
	f.StringVar(&opts.failedDir, "failed-dir", os.Getenv("IMPORT_FAILED_DIR"), "local folder for rejected files")
	f.BoolVar(&opts.dryRun, "dry-run", strings.EqualFold(os.Getenv("IMPORT_DRY_RUN"), "true"), "validate only")
	f.BoolVar(&opts.strict, "strict", strings.EqualFold(os.Getenv("IMPORT_STRICT"), "true"), "write nothing from a file with invalid rows")
	f.StringVar(&opts.ftp.Host, "host", opts.ftp.Host, "ftp host")
	f.IntVar(&opts.ftp.Port, "port", opts.ftp.Port, "ftp port")
	f.StringVar(&opts.ftp.RemoteDir, "remote-dir", opts.ftp.RemoteDir, "remote folder to read")
	f.StringVar(&opts.ftp.Pattern, "pattern", opts.ftp.Pattern, "remote file name pattern")
	f.StringVar(&opts.ftp.ArchiveDir, "archive-dir", opts.ftp.ArchiveDir, "remote folder for processed files")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	logger := config.GetLogger()
	if strings.TrimSpace(opts.username) == "" {
		return fmt.Errorf("--user or IMPORT_USERNAME is required")
	}
	if opts.successDir == "" {
		opts.successDir = filepath.Join(opts.workDir, "success")
	}
	if opts.failedDir == "" {
		opts.failedDir = filepath.Join(opts.workDir, "failed")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := config.ConnectDatabaseWithRetry(connectCtx); err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := config.ConnectRedisWithRetry(connectCtx); err != nil {
		config.LogError(logger, "import-ftp", "run", "connect redis", nil, err)
	}
	userCtx, user, err := models.ActAs(ctx, opts.username)
	if err != nil {
		return fmt.Errorf("user %s: %w", opts.username, err)
	}
	logger.Infof("importing as %s into business %s", user.Username, user.BusinessId)

	client, err := ftpimport.Dial(opts.ftp)
	if err != nil {
		return err
	}
	defer client.Close()

	files, err := client.Download(opts.workDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logger.Info("no files to import")
		return nil
	}

	runner := &ftpimport.Runner{
		Importer:   importer.New(importer.ModelStore{}),
		Archiver:   client,
		SuccessDir: opts.successDir,
		FailedDir:  opts.failedDir,
		DryRun:     opts.dryRun,
		Strict:     opts.strict,
		Logger:     logger,
	}
	summary, err := runner.Run(userCtx, files)
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", summary.Failed, len(summary.Files))
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
