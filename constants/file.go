package constants

import (
	"path"
	"strings"
)

// AllowedExtensions holds the file extensions the extraction engine accepts.
// Anything else is rejected at ingest before a job row exists.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ExtensionAllowed reports whether the object key names a supported file type.
func ExtensionAllowed(key string) bool {
	ext := NormalizeExt(path.Ext(key))
	_, ok := AllowedExtensions[ext]
	return ok
}

// ExtractFeature is a requested extraction capability, carried on the job row
// so the completion handler can pick the matching result API.
type ExtractFeature string

const (
	FeatureTables ExtractFeature = "TABLES"
	FeatureForms  ExtractFeature = "FORMS"
)

// NeedsAnalysis reports whether the feature set requires the analysis API
// variant; plain jobs use the lighter text-detection variant.
func NeedsAnalysis(features []string) bool {
	return len(features) > 0
}
