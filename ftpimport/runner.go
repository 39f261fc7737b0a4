package ftpimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/importer"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/sirupsen/logrus"
)

const Source = "ftp"

var ErrUnknownFile = errors.New("file name must start with clients_, inventory_, payments_ or pettycash_")

// Importer is the part of importer.Importer a Runner needs.
type Importer interface {
	Import(ctx context.Context, opts importer.Options, r io.Reader) (*importer.Result, error)
}

// Archiver moves a processed remote file aside.
type Archiver interface {
	Archive(name, sub string) error
}

type Runner struct {
	Importer   Importer
	Archiver   Archiver
	SuccessDir string
	FailedDir  string
	DryRun     bool
	Strict     bool
	Logger     *logrus.Logger
}

// FileOutcome is the result of importing one file.
type FileOutcome struct {
	File   string              `json:"file"`
	Entity models.ImportEntity `json:"entity,omitempty"`
	Result *importer.Result    `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

func (o FileOutcome) Failed() bool {
	if o.Error != "" {
		return true
	}
	return o.Result != nil && !o.Result.DryRun && !o.Result.Committed
}

type Summary struct {
	Files     []FileOutcome `json:"files"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

// EntityForFile maps "<entity>_<anything>.csv|xlsx" to its import entity.
func EntityForFile(name string) (models.ImportEntity, error) {
	base := strings.ToLower(filepath.Base(name))
	ext := filepath.Ext(base)
	if ext != ".csv" && ext != ".xlsx" {
		return "", importer.ErrUnsupportedFormat
	}
	prefix, _, found := strings.Cut(strings.TrimSuffix(base, ext), "_")
	if !found {
		return "", ErrUnknownFile
	}
	entity, err := models.ParseImportEntity(prefix)
	if err != nil {
		return "", ErrUnknownFile
	}
	return entity, nil
}

var entityOrder = map[models.ImportEntity]int{
	models.ImportEntityClients:   0,
	models.ImportEntityInventory: 1,
	models.ImportEntityPayments:  2,
	models.ImportEntityPettyCash: 3,
}

// orderFiles sorts files so clients load before the payments that reference
// them; files of one entity keep name order and unknown files go last.
func orderFiles(files []string) []string {
	rank := func(f string) int {
		e, err := EntityForFile(f)
		if err != nil {
			return len(entityOrder)
		}
		return entityOrder[e]
	}
	out := append([]string(nil), files...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return filepath.Base(out[i]) < filepath.Base(out[j])
	})
	return out
}

// Run imports every file and moves it into SuccessDir or FailedDir. ctx must
// act as a user of the target business (see models.ActAs).
func (r *Runner) Run(ctx context.Context, files []string) (*Summary, error) {
	businessId, _, _, ok := utils.UserContext(ctx)
	if !ok {
		return nil, models.ErrUserRequired
	}
	logger := r.Logger
	if logger == nil {
		logger = config.GetLogger()
	}

	summary := &Summary{Files: []FileOutcome{}}
	for _, file := range orderFiles(files) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		outcome := r.importFile(ctx, file)
		summary.Files = append(summary.Files, outcome)

		dest, sub := r.SuccessDir, "success"
		if outcome.Failed() {
			summary.Failed++
			dest, sub = r.FailedDir, "failed"
			logger.WithFields(logrus.Fields{"module": "ftpimport", "file": file}).Warn("import failed: " + outcome.Error)
		} else {
			summary.Succeeded++
		}
		if err := moveFile(file, dest); err != nil {
			config.LogError(logger, "ftpimport", "Run", "move local file", file, err)
		}
		if r.Archiver != nil && !r.DryRun {
			if err := r.Archiver.Archive(filepath.Base(file), sub); err != nil {
				config.LogError(logger, "ftpimport", "Run", "archive remote file", file, err)
			}
		}
	}
	config.LogInfo(logger, "ftpimport", "Run", "ftp import finished", map[string]interface{}{
		"business":  businessId,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	})
	return summary, nil
}

func (r *Runner) importFile(ctx context.Context, file string) FileOutcome {
	outcome := FileOutcome{File: filepath.Base(file)}
	entity, err := EntityForFile(file)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Entity = entity

	f, err := os.Open(file)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	defer f.Close()

	result, err := r.Importer.Import(ctx, importer.Options{
		Entity:   entity,
		FileName: filepath.Base(file),
		Source:   Source,
		DryRun:   r.DryRun,
		Strict:   r.Strict,
	}, f)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Result = result
	if outcome.Failed() {
		outcome.Error = fmt.Sprintf("%d invalid rows, nothing written", result.Invalid)
	}
	return outcome
}

// moveFile renames file into dir; an empty dir leaves the file in place.
func moveFile(file, dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.Rename(file, filepath.Join(dir, filepath.Base(file)))
}
