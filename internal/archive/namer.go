// Package archive turns fetched messages into markdown archive files.
package archive

import (
	"path/filepath"
	"strconv"
)

// MediaDirName is the per-channel subdirectory holding downloaded attachments.
const MediaDirName = "media"

var mimeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"application/pdf": ".pdf",
	"text/plain":      ".txt",
}

// MediaFileName returns the stored filename for a message attachment:
// msg_<id> plus an extension taken from the declared filename, then the MIME
// type, then .bin. Photos are passed with image/jpeg.
func MediaFileName(id int, fileName, mimeType string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		var ok bool
		if ext, ok = mimeExtensions[mimeType]; !ok {
			ext = ".bin"
		}
	}
	return "msg_" + strconv.Itoa(id) + ext
}

// MediaRef is the link target used inside markdown for a stored attachment.
func MediaRef(fileName string) string {
	return MediaDirName + "/" + fileName
}
