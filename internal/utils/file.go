package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RunTimestampLayout formats the run timestamp used in output directory names
const RunTimestampLayout = "20060102_150405"

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// IsHidden reports whether a file name starts with a dot
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// ListInputFiles lists the regular, non-hidden files directly inside dir,
// sorted by name. Subdirectories are not descended into.
func ListInputFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if IsHidden(e.Name()) || !e.Type().IsRegular() {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// CleanTitle turns an input file name into a title: the extension is
// dropped, dashes and underscores become spaces, and the result is trimmed.
func CleanTitle(inputName string) string {
	base := filepath.Base(inputName)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	title = strings.NewReplacer("-", " ", "_", " ").Replace(title)
	return strings.TrimSpace(title)
}

// BuildFilename joins prefix, the cleaned title and suffix with single
// spaces and appends the output format as extension.
func BuildFilename(prefix, inputName, suffix, format string) string {
	joined := prefix + " " + CleanTitle(inputName) + " " + suffix
	name := strings.Join(strings.Fields(joined), " ")
	return name + "." + format
}

// OutputDirName names the per-mockup output directory of a run
func OutputDirName(mockup string, runTime time.Time, count int) string {
	return fmt.Sprintf("%s.%s.%d", mockup, runTime.Format(RunTimestampLayout), count)
}

// RemoveFiles deletes every path, ignoring files that are already gone.
// It returns the number removed and the joined errors of the rest.
func RemoveFiles(paths []string) (int, error) {
	var errs []error
	removed := 0
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, os.ErrNotExist):
		default:
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && info.IsDir()
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	return strings.Trim(result, " .")
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
