package infra

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// flagCDNTemplate serves 40px-wide PNG flags by ISO 3166 country code.
const flagCDNTemplate = "https://flagcdn.com/w40/%s.png"

// FlagDownloader handles downloading and caching currency flag icons
type FlagDownloader struct {
	basePath string
	client   *http.Client
}

// NewFlagDownloader creates a new FlagDownloader
func NewFlagDownloader() (*FlagDownloader, error) {
	path, err := getAssetsPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve assets path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create assets directory: %w", err)
	}

	// Optimize HTTP Transport to prevent connection leaks
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxConnsPerHost = 10
	transport.IdleConnTimeout = 30 * time.Second

	return &FlagDownloader{
		basePath: path,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
	}, nil
}

// DownloadFlag downloads the flag for an ISO 3166 country code if it
// doesn't exist and returns the local file path.
// Images are resized to 32x24 pixels for consistent UI display
func (d *FlagDownloader) DownloadFlag(countryCode string) (string, error) {
	// Security: Sanitize code to prevent path traversal
	safeCode := sanitizeCountryCode(countryCode)
	if safeCode == "" {
		return "", fmt.Errorf("invalid country code: %s", countryCode)
	}

	fileName := safeCode + ".png"
	filePath := filepath.Join(d.basePath, fileName)

	// Check if exists
	if _, err := os.Stat(filePath); err == nil {
		return filePath, nil // Already exists (Cache Hit)
	}

	url := fmt.Sprintf(flagCDNTemplate, safeCode)

	resp, err := d.client.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bad status: %s", resp.Status)
	}

	// Decode the image
	srcImg, err := imaging.Decode(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	// Resize to 32x24 with high-quality Lanczos filter
	resizedImg := imaging.Resize(srcImg, 32, 24, imaging.Lanczos)

	// Save the resized image
	if err := imaging.Save(resizedImg, filePath); err != nil {
		return "", fmt.Errorf("failed to save resized image: %w", err)
	}

	return filePath, nil
}

// FlagPath returns the local path for a country's flag icon
func (d *FlagDownloader) FlagPath(countryCode string) string {
	return filepath.Join(d.basePath, sanitizeCountryCode(countryCode)+".png")
}

// BasePath returns the directory flag assets are stored in
func (d *FlagDownloader) BasePath() string {
	return d.basePath
}

func getAssetsPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "CambioGo", "assets", "flags"), nil
}

func sanitizeCountryCode(code string) string {
	res := make([]rune, 0, len(code))
	for _, r := range strings.ToLower(code) {
		if r >= 'a' && r <= 'z' {
			res = append(res, r)
		}
	}
	return string(res)
}
