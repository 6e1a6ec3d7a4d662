package services

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationResult contains the results of file validation
type ValidationResult struct {
	Valid        bool
	DetectedType string // "XLSX", "XLS", "XML", "CSV"
	Size         int64
	Errors       []string
}

// FileValidator validates uploaded files before they reach a converter
type FileValidator struct {
	maxSizeBytes int64
}

// File magic bytes signatures
var fileMagicBytes = map[string][]byte{
	"XLSX": {0x50, 0x4B, 0x03, 0x04}, // ZIP signature (XLSX is a ZIP)
	"XLS":  {0xD0, 0xCF, 0x11, 0xE0}, // OLE compound file
}

// Allowed file extensions
var allowedExtensions = map[string]bool{
	".xlsx": true,
	".xls":  true,
	".xml":  true,
	".csv":  true,
}

// NewFileValidator creates a new file validator with the specified maximum file size
func NewFileValidator(maxSizeBytes int64) *FileValidator {
	return &FileValidator{maxSizeBytes: maxSizeBytes}
}

// ValidateFile performs validation on an uploaded file and restricts it to
// the detected types the caller accepts (e.g. only XLSX for a catalog).
func (v *FileValidator) ValidateFile(data []byte, filename string, acceptTypes ...string) *ValidationResult {
	result := &ValidationResult{
		Valid:  true,
		Size:   int64(len(data)),
		Errors: []string{},
	}

	if err := v.ValidateFilename(filename); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	}

	if err := v.ValidateFileSize(result.Size); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	detectedType, err := v.DetectType(data)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	result.DetectedType = detectedType

	if len(acceptTypes) > 0 {
		accepted := false
		for _, t := range acceptTypes {
			if t == detectedType {
				accepted = true
				break
			}
		}
		if !accepted {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"expected %s content, got %s", strings.Join(acceptTypes, "/"), detectedType))
		}
	}

	return result
}

// ValidateFilename validates the filename for security issues
func (v *FileValidator) ValidateFilename(filename string) error {
	if filename == "" {
		return errors.New("filename cannot be empty")
	}

	if strings.Contains(filename, "..") {
		return errors.New("filename contains path traversal")
	}

	if strings.Contains(filename, "\x00") {
		return errors.New("filename contains null bytes")
	}

	if strings.HasPrefix(filename, "/") || strings.HasPrefix(filename, "\\") {
		return errors.New("filename cannot be absolute path")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return errors.New("filename must have an extension")
	}

	if !allowedExtensions[ext] {
		return fmt.Errorf("unsupported file extension: %s", ext)
	}

	return nil
}

// DetectType detects the file type from its content
func (v *FileValidator) DetectType(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty file")
	}

	if bytes.HasPrefix(data, fileMagicBytes["XLSX"]) {
		return "XLSX", nil
	}
	if bytes.HasPrefix(data, fileMagicBytes["XLS"]) {
		return "XLS", nil
	}

	if v.isTextContent(data) {
		trimmed := bytes.TrimLeft(data, " \t\r\n\xef\xbb\xbf")
		if len(trimmed) > 0 && trimmed[0] == '<' {
			return "XML", nil
		}
		return "CSV", nil
	}

	return "", errors.New("unsupported file type based on content")
}

// ValidateFileSize validates the file size is within limits
func (v *FileValidator) ValidateFileSize(size int64) error {
	if size == 0 {
		return errors.New("empty file")
	}

	if size > v.maxSizeBytes {
		return fmt.Errorf("file size (%d bytes) exceeds maximum allowed size (%d bytes)", size, v.maxSizeBytes)
	}

	return nil
}

// isTextContent checks if the data appears to be text (for XML/CSV detection)
func (v *FileValidator) isTextContent(data []byte) bool {
	// Check first 512 bytes (or less if file is smaller)
	checkLen := len(data)
	if checkLen > 512 {
		checkLen = 512
	}

	sample := data[:checkLen]

	// Text files shouldn't have null bytes
	if bytes.Contains(sample, []byte{0x00}) {
		return false
	}

	printable := 0
	for _, b := range sample {
		// Printable ASCII, common whitespace, or UTF-8 continuation bytes
		if (b >= 0x20 && b <= 0x7E) || b == 0x09 || b == 0x0A || b == 0x0D || b >= 0x80 {
			printable++
		}
	}

	return float64(printable)/float64(len(sample)) > 0.95
}
