package validation

import (
	"bytes"
	"io"
)

type FileType string

const (
	FileTypePNG  FileType = "png"
	FileTypeJPEG FileType = "jpeg"
	FileTypeGIF  FileType = "gif"
	FileTypeBMP  FileType = "bmp"
	FileTypeTIFF FileType = "tiff"
)

var magicBytes = map[FileType][]byte{
	FileTypePNG:  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	FileTypeJPEG: {0xFF, 0xD8, 0xFF},
	FileTypeGIF:  {0x47, 0x49, 0x46, 0x38},
	FileTypeBMP:  {0x42, 0x4D},
	FileTypeTIFF: {0x49, 0x49, 0x2A, 0x00},
}

// DetectFileType sniffs the leading bytes of the file and rewinds it.
// Only common raster formats are recognized.
func DetectFileType(file io.ReadSeeker) (FileType, error) {
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	for fileType, signature := range magicBytes {
		if bytes.HasPrefix(buffer[:n], signature) {
			return fileType, nil
		}
	}

	return "", ErrInvalidFileType
}
