package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/farxc/orcamento-analytics/internal/logger"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3"

type Downloader struct {
	client *http.Client
	logger *logger.Logger
}

func New(appLogger *logger.Logger) *Downloader {
	client := &http.Client{Timeout: 10 * time.Minute}
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		req.Header.Set("User-Agent", userAgent)
		return nil
	}
	return &Downloader{client: client, logger: appLogger}
}

// FetchData downloads url into destDir and returns the written path. The
// file name is taken from the URL path.
func (d *Downloader) FetchData(ctx context.Context, url string, destDir string) (string, error) {
	const component = "Downloader"

	name := path.Base(url)
	if name == "" || name == "/" || name == "." {
		name = fmt.Sprintf("download_%d", time.Now().Unix())
	}
	outputPath := filepath.Join(destDir, name)

	d.logger.Debug(component, "Starting download url=%s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error(component, "HTTP request failed: url=%s error=%v", url, err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.logger.Warn(component, "Non-OK HTTP response: url=%s status=%s statusCode=%d", url, resp.Status, resp.StatusCode)
		return "", fmt.Errorf("download %s: %s", url, resp.Status)
	}

	if err := os.MkdirAll(destDir, os.ModePerm); err != nil {
		return "", err
	}
	tmp := outputPath + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		d.logger.Error(component, "Failed to create output file: path=%s error=%v", tmp, err)
		return "", err
	}

	bytesWritten, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		d.logger.Error(component, "Failed to write data to file: url=%s error=%v", url, err)
		return "", err
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		return "", err
	}

	d.logger.Info(component, "Download completed: path=%s size=%d bytes", outputPath, bytesWritten)
	return outputPath, nil
}
