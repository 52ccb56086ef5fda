package file

import (
	"fmt"
	"path/filepath"
	"strings"
)

// File categories derived from the upload's extension.
const (
	CategoryImage    = "image"
	CategoryVideo    = "video"
	CategoryDocument = "document"
	CategoryAudio    = "audio"
)

var extensionCategories = map[string]string{
	".jpg":  CategoryImage,
	".jpeg": CategoryImage,
	".png":  CategoryImage,
	".gif":  CategoryImage,
	".webp": CategoryImage,
	".bmp":  CategoryImage,
	".svg":  CategoryImage,

	".mp4":  CategoryVideo,
	".mkv":  CategoryVideo,
	".avi":  CategoryVideo,
	".mov":  CategoryVideo,
	".wmv":  CategoryVideo,
	".flv":  CategoryVideo,
	".webm": CategoryVideo,
	".m4v":  CategoryVideo,

	".mp3":  CategoryAudio,
	".wav":  CategoryAudio,
	".ogg":  CategoryAudio,
	".flac": CategoryAudio,
	".aac":  CategoryAudio,
	".m4a":  CategoryAudio,

	".pdf":  CategoryDocument,
	".doc":  CategoryDocument,
	".docx": CategoryDocument,
	".xls":  CategoryDocument,
	".xlsx": CategoryDocument,
	".ppt":  CategoryDocument,
	".pptx": CategoryDocument,
	".txt":  CategoryDocument,
	".csv":  CategoryDocument,
	".zip":  CategoryDocument,
	".rar":  CategoryDocument,
}

// Extension returns the lowercased extension of a file name, dot included.
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// CategoryForName derives the category from a file name's extension. An
// unknown extension is a validation error, not a fallback category.
func CategoryForName(name string) (string, error) {
	ext := Extension(name)
	if ext == "" {
		return "", fmt.Errorf("file %q has no extension", name)
	}
	category, ok := extensionCategories[ext]
	if !ok {
		return "", fmt.Errorf("unsupported file extension %q", ext)
	}
	return category, nil
}
