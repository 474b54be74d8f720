package filetype

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// FileTypeInfo contains detected file type information.
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	IsPDF       bool
	Description string
}

// Detector identifies file types by magic bytes rather than filename.
type Detector struct{}

func New() *Detector {
	return &Detector{}
}

// Detect inspects the file's magic bytes and reports what it actually is.
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}

	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}

	switch info.MIMEType {
	case "application/pdf":
		info.IsPDF = true
		info.Description = "PDF document"
	default:
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}

	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("file", filePath).Msg("detected file type")
	return info, nil
}

// EnsurePDF returns an error when the file at filePath is not a PDF by
// content, regardless of its extension.
func (d *Detector) EnsurePDF(filePath string) error {
	info, err := d.Detect(filePath)
	if err != nil {
		return err
	}
	if !info.IsPDF {
		return fmt.Errorf("not a PDF: detected %s", info.MIMEType)
	}
	return nil
}
