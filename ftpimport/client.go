// Package ftpimport picks up import files from an FTP drop folder and feeds
// them to the importer.
package ftpimport

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	RemoteDir  string
	Pattern    string
	ArchiveDir string
	// DeleteAfter removes remote files instead of archiving them when
	// ArchiveDir is empty.
	DeleteAfter bool
	Timeout     time.Duration
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// ConfigFromEnv reads the FTP_* variables.
func ConfigFromEnv() Config {
	port, err := strconv.Atoi(envOr("FTP_PORT", "21"))
	if err != nil || port <= 0 {
		port = 21
	}
	return Config{
		Host:        os.Getenv("FTP_HOST"),
		Port:        port,
		Username:    envOr("FTP_USERNAME", "anonymous"),
		Password:    os.Getenv("FTP_PASSWORD"),
		RemoteDir:   os.Getenv("FTP_REMOTE_DIR"),
		Pattern:     envOr("FTP_FILE_PATTERN", "*"),
		ArchiveDir:  os.Getenv("FTP_ARCHIVE_DIR"),
		DeleteAfter: strings.EqualFold(os.Getenv("FTP_DELETE_AFTER_DOWNLOAD"), "true"),
		Timeout:     30 * time.Second,
	}
}

type Client struct {
	conn *ftp.ServerConn
	cfg  Config
}

func Dial(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ftp host is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	conn, err := ftp.Dial(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), ftp.DialWithTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect to ftp server: %w", err)
	}
	if err := conn.Login(cfg.Username, cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("login to ftp server: %w", err)
	}
	return &Client{conn: conn, cfg: cfg}, nil
}

func (c *Client) Close() error {
	return c.conn.Quit()
}

// Download copies every remote file matching the pattern into localDir and
// returns the local paths.
func (c *Client) Download(localDir string) ([]string, error) {
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, fmt.Errorf("create local folder: %w", err)
	}
	if c.cfg.RemoteDir != "" {
		if err := c.conn.ChangeDir(c.cfg.RemoteDir); err != nil {
			return nil, fmt.Errorf("change directory: %w", err)
		}
	}
	entries, err := c.conn.List(".")
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.Type != ftp.EntryTypeFile || !matches(c.cfg.Pattern, entry.Name) {
			continue
		}
		local := filepath.Join(localDir, entry.Name)
		if err := c.retrieve(entry.Name, local); err != nil {
			return files, fmt.Errorf("download %s: %w", entry.Name, err)
		}
		files = append(files, local)
	}
	return files, nil
}

func (c *Client) retrieve(remote, local string) error {
	resp, err := c.conn.Retr(remote)
	if err != nil {
		return err
	}
	defer resp.Close()

	f, err := os.Create(local)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Archive moves a processed remote file into ArchiveDir/sub with a timestamp
// suffix, or deletes it when no archive folder is configured.
func (c *Client) Archive(name, sub string) error {
	name = path.Base(name)
	if c.cfg.ArchiveDir == "" {
		if !c.cfg.DeleteAfter {
			return nil
		}
		if err := c.conn.Delete(name); err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
		return nil
	}
	dir := path.Join(c.cfg.ArchiveDir, sub)
	if err := c.ensureDir(dir); err != nil {
		return fmt.Errorf("ensure archive folder: %w", err)
	}
	dest := path.Join(dir, timestamped(name, time.Now()))
	if err := c.conn.Rename(name, dest); err != nil {
		return fmt.Errorf("move %s to %s: %w", name, dest, err)
	}
	return nil
}

// ensureDir creates each missing segment of dir without changing the
// working directory.
func (c *Client) ensureDir(dir string) error {
	current := ""
	if strings.HasPrefix(dir, "/") {
		current = "/"
	}
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		if part == "" {
			continue
		}
		current = path.Join(current, part)
		if _, err := c.conn.List(current); err == nil {
			continue
		}
		if err := c.conn.MakeDir(current); err != nil {
			return err
		}
	}
	return nil
}

func matches(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}

func timestamped(name string, at time.Time) string {
	ext := path.Ext(name)
	return fmt.Sprintf("%s_%s%s", strings.TrimSuffix(name, ext), at.Format("20060102_150405"), ext)
}
