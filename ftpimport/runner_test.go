package ftpimport

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rentiq/rentiq_backend/importer"
	"github.com/rentiq/rentiq_backend/models"
	"github.com/rentiq/rentiq_backend/utils"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImporter struct {
	calls  []importer.Options
	fail   map[string]error
	strict map[string]bool
}

func (f *fakeImporter) Import(ctx context.Context, opts importer.Options, r io.Reader) (*importer.Result, error) {
	if id, _ := utils.GetBusinessIdFromContext(ctx); id != "biz-1" {
		return nil, errors.New("business missing from context")
	}
	f.calls = append(f.calls, opts)
	if err := f.fail[opts.FileName]; err != nil {
		return nil, err
	}
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	res := &importer.Result{Entity: opts.Entity, FileName: opts.FileName, DryRun: opts.DryRun, Committed: !opts.DryRun}
	if f.strict[opts.FileName] {
		res.Committed = false
		res.Invalid = 2
	}
	return res, nil
}

type fakeArchiver struct{ moved map[string]string }

func (a *fakeArchiver) Archive(name, sub string) error {
	a.moved[name] = sub
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func userContext() context.Context {
	ctx := utils.SetBusinessIdInContext(context.Background(), "biz-1")
	ctx = utils.SetUserIdInContext(ctx, 7)
	return utils.SetUserNameInContext(ctx, "Importer")
}

func writeFiles(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	var out []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte("name\nAcme\n"), 0o644))
		out = append(out, p)
	}
	return out
}

func TestEntityForFile(t *testing.T) {
	cases := map[string]models.ImportEntity{
		"clients_2024-03.csv":        models.ImportEntityClients,
		"/tmp/in/Inventory_all.XLSX": models.ImportEntityInventory,
		"payments_march.csv":         models.ImportEntityPayments,
		"pettycash_week1.xlsx":       models.ImportEntityPettyCash,
	}
	for name, want := range cases {
		got, err := EntityForFile(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := EntityForFile("clients.txt")
	assert.ErrorIs(t, err, importer.ErrUnsupportedFormat)
	_, err = EntityForFile("clients.csv")
	assert.ErrorIs(t, err, ErrUnknownFile)
	_, err = EntityForFile("widgets_1.csv")
	assert.ErrorIs(t, err, ErrUnknownFile)
}

func TestOrderFilesLoadsClientsFirst(t *testing.T) {
	got := orderFiles([]string{"payments_b.csv", "junk.csv", "payments_a.csv", "clients_x.csv", "inventory_1.xlsx"})
	assert.Equal(t, []string{"clients_x.csv", "inventory_1.xlsx", "payments_a.csv", "payments_b.csv", "junk.csv"}, got)
}

func TestRunMovesFilesByOutcome(t *testing.T) {
	in := t.TempDir()
	okDir := filepath.Join(t.TempDir(), "ok")
	badDir := filepath.Join(t.TempDir(), "bad")
	files := writeFiles(t, in, "payments_mar.csv", "clients_mar.csv", "inventory_mar.csv", "notes.csv")

	imp := &fakeImporter{
		fail:   map[string]error{"inventory_mar.csv": importer.ErrMissingColumns},
		strict: map[string]bool{"payments_mar.csv": true},
	}
	arch := &fakeArchiver{moved: map[string]string{}}
	r := &Runner{Importer: imp, Archiver: arch, SuccessDir: okDir, FailedDir: badDir, Strict: true, Logger: quietLogger()}

	summary, err := r.Run(userContext(), files)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 3, summary.Failed)
	require.Len(t, summary.Files, 4)
	assert.Equal(t, "clients_mar.csv", summary.Files[0].File)

	require.Len(t, imp.calls, 3)
	assert.Equal(t, models.ImportEntityClients, imp.calls[0].Entity)
	assert.Equal(t, Source, imp.calls[0].Source)
	assert.True(t, imp.calls[0].Strict)

	assert.FileExists(t, filepath.Join(okDir, "clients_mar.csv"))
	for _, n := range []string{"payments_mar.csv", "inventory_mar.csv", "notes.csv"} {
		assert.FileExists(t, filepath.Join(badDir, n))
		assert.Equal(t, "failed", arch.moved[n])
	}
	assert.Equal(t, "success", arch.moved["clients_mar.csv"])
	assert.Contains(t, summary.Files[2].Error, "invalid rows")
}

func TestRunLogsFailuresUnderModuleKey(t *testing.T) {
	files := writeFiles(t, t.TempDir(), "inventory_bad.csv")
	logger, hook := logtest.NewNullLogger()
	imp := &fakeImporter{fail: map[string]error{"inventory_bad.csv": importer.ErrMissingColumns}}
	r := &Runner{Importer: imp, DryRun: true, Logger: logger}

	_, err := r.Run(userContext(), files)
	require.NoError(t, err)

	var warned *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = e
		}
	}
	require.NotNil(t, warned)
	assert.Equal(t, "ftpimport", warned.Data["module"])
	assert.Equal(t, files[0], warned.Data["file"])
	assert.NotContains(t, warned.Data, "field")
}

func TestRunDryRunKeepsRemoteFiles(t *testing.T) {
	files := writeFiles(t, t.TempDir(), "clients_a.csv")
	arch := &fakeArchiver{moved: map[string]string{}}
	r := &Runner{Importer: &fakeImporter{}, Archiver: arch, DryRun: true, Logger: quietLogger()}

	summary, err := r.Run(userContext(), files)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Empty(t, arch.moved)
	assert.FileExists(t, files[0])
}

func TestRunRequiresActingUser(t *testing.T) {
	ctx := utils.SetBusinessIdInContext(context.Background(), "biz-1")
	_, err := (&Runner{Importer: &fakeImporter{}}).Run(ctx, nil)
	assert.ErrorIs(t, err, models.ErrUserRequired)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("FTP_HOST", "ftp.example.com")
	t.Setenv("FTP_PORT", "not-a-port")
	t.Setenv("FTP_FILE_PATTERN", "")
	t.Setenv("FTP_DELETE_AFTER_DOWNLOAD", "TRUE")

	cfg := ConfigFromEnv()
	assert.Equal(t, "ftp.example.com", cfg.Host)
	assert.Equal(t, 21, cfg.Port)
	assert.Equal(t, "*", cfg.Pattern)
	assert.True(t, cfg.DeleteAfter)
}

func TestTimestampedAndMatches(t *testing.T) {
	at := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	assert.Equal(t, "clients_a_20240305_140709.csv", timestamped("clients_a.csv", at))
	assert.True(t, matches("*.csv", "clients_a.csv"))
	assert.False(t, matches("*.csv", "clients_a.xlsx"))
	assert.True(t, matches("", "anything"))
}
