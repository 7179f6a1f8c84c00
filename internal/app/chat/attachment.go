package chat

import (
	"path/filepath"
	"strings"

	"cfoclient/internal/pkg/errs"
)

const (
	// MaxAttachmentSizeMB is the maximum allowed file size in megabytes.
	MaxAttachmentSizeMB = 10

	// MaxAttachmentSize is the maximum allowed file size in bytes.
	MaxAttachmentSize = MaxAttachmentSizeMB * 1024 * 1024
)

// ExtToMIME maps the permitted file extensions to their MIME types.
var ExtToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".csv":  "text/csv",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".txt":  "text/plain",
	".zip":  "application/zip",
}

// ValidateFileSize checks if the provided file size is within acceptable limits.
func ValidateFileSize(fileSize int64) *errs.CustomError {
	if fileSize <= 0 {
		return errs.NewError(errs.ErrValidation).WithMessage("File is empty.")
	}

	if fileSize > MaxAttachmentSize {
		return errs.NewError(errs.ErrFileTooLarge).WithMessage("File must be 10 MB or smaller.")
	}

	return nil
}

// ValidateFileType checks the extension and returns the MIME type to upload with.
func ValidateFileType(fileName string) (string, *errs.CustomError) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) < 2 {
		return "", errs.NewError(errs.ErrInvalidFileType)
	}

	mimeType, ok := ExtToMIME[ext]
	if !ok {
		return "", errs.NewError(errs.ErrInvalidFileType)
	}

	return mimeType, nil
}
