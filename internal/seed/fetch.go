package seed

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const ftpTimeout = 30 * time.Second

// fetchRoster materializes the roster source as a local file and returns
// its path. HTTP(S) and FTP URLs are downloaded into tempDir; anything
// else is treated as a local path.
func fetchRoster(ctx context.Context, client *http.Client, rosterURL, tempDir string) (string, error) {
	u, err := url.Parse(rosterURL)
	if err != nil {
		return "", eris.Wrap(err, "seed: parse roster url")
	}

	switch u.Scheme {
	case "http", "https":
		dest := filepath.Join(tempDir, "roster.xlsx")
		if err := downloadHTTP(ctx, client, rosterURL, dest); err != nil {
			return "", err
		}
		return dest, nil

	case "ftp":
		dest := filepath.Join(tempDir, "roster.xlsx")
		if err := downloadFTP(ctx, rosterURL, dest); err != nil {
			return "", err
		}
		return dest, nil

	default:
		return rosterURL, nil
	}
}

func downloadHTTP(ctx context.Context, client *http.Client, rosterURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rosterURL, nil)
	if err != nil {
		return eris.Wrap(err, "seed: build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "seed: download roster")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("seed: roster download returned status %d", resp.StatusCode)
	}

	return writeFile(dest, resp.Body)
}

func downloadFTP(ctx context.Context, rosterURL, dest string) error {
	host, path, err := parseFTPURL(rosterURL)
	if err != nil {
		return err
	}

	zap.L().Debug("seed: ftp connect", zap.String("host", host), zap.String("path", path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "seed: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		return eris.Wrap(err, "seed: ftp login")
	}

	resp, err := conn.Retr(path)
	if err != nil {
		return eris.Wrap(err, "seed: ftp retrieve")
	}
	defer resp.Close() //nolint:errcheck

	return writeFile(dest, resp)
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "seed: parse ftp url")
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	path = u.Path
	if path == "" {
		return "", "", eris.New("seed: empty path in ftp url")
	}

	return host, path, nil
}

func writeFile(dest string, r io.Reader) error {
	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "seed: create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, r); err != nil {
		return eris.Wrap(err, "seed: write file")
	}
	return nil
}
