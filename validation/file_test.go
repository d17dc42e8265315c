package validation

import (
	"bytes"
	"errors"
	"testing"
)

func TestDetectFileType(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want FileType
	}{
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, FileTypePNG},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, FileTypeJPEG},
		{"gif", []byte("GIF89a"), FileTypeGIF},
		{"bmp", []byte{0x42, 0x4D, 0x00, 0x00}, FileTypeBMP},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := bytes.NewReader(tc.data)
			got, err := DetectFileType(r)
			if err != nil {
				t.Fatalf("DetectFileType failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}

			// The reader must be rewound for the next consumer.
			if pos, _ := r.Seek(0, 1); pos != 0 {
				t.Errorf("reader not rewound, at %d", pos)
			}
		})
	}
}

func TestDetectFileType_Unsupported(t *testing.T) {
	r := bytes.NewReader([]byte("%PDF-1.4 not an image"))
	if _, err := DetectFileType(r); !errors.Is(err, ErrInvalidFileType) {
		t.Fatalf("expected ErrInvalidFileType, got %v", err)
	}
}

func TestIsValidationError(t *testing.T) {
	if !IsValidationError(ErrTooManyFiles) {
		t.Error("ErrTooManyFiles should be a validation error")
	}
	if IsValidationError(errors.New("disk on fire")) {
		t.Error("arbitrary error should not be a validation error")
	}
}
